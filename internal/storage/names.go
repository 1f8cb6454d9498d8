package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"strings"
	"unicode"
)

var contentTypeExt = map[string]string{
	"application/pdf":    ".pdf",
	"application/msword": ".doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
	"application/postscript": ".ps",
	"application/x-tex":      ".tex",
	"text/plain":             ".txt",
	"text/markdown":          ".md",
}

// ExtensionFor maps a MIME type to a file extension, defaulting to .pdf.
func ExtensionFor(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	if ext, ok := contentTypeExt[ct]; ok {
		return ext
	}
	return ".pdf"
}

// ContentTypeFor guesses the MIME type of an object from its extension.
func ContentTypeFor(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".pdf":
		return "application/pdf"
	case ".md":
		return "text/markdown; charset=utf-8"
	case ".txt":
		return "text/plain; charset=utf-8"
	case ".html", ".htm":
		return "text/html; charset=utf-8"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".doc":
		return "application/msword"
	case ".ps":
		return "application/postscript"
	case ".tex":
		return "application/x-tex"
	}
	return "application/octet-stream"
}

// CleanName drops characters that are unsafe in object names, keeping
// letters, digits, '.', '_' and '-'.
func CleanName(name string) string {
	var sb strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '_' || r == '-' {
			sb.WriteRune(r)
		}
	}
	return strings.TrimLeft(sb.String(), ".")
}

// SafeObjectName derives an object name from a download URL. URLs without
// a usable file name fall back to the MD5 of the URL. The name always ends
// in the extension for contentType (PDF when empty or unknown), appended
// when the URL's own suffix is something else, as in "2401.00001" or
// "download.php".
func SafeObjectName(rawURL, contentType string) string {
	var base string
	if u, err := url.Parse(rawURL); err == nil {
		base = path.Base(u.Path)
	}
	ext := ExtensionFor(contentType)
	switch {
	case base == "/" || base == "." || !strings.Contains(base, "."):
		sum := md5.Sum([]byte(rawURL))
		base = hex.EncodeToString(sum[:]) + ext
	case !sameType(path.Ext(base), ext):
		base += ext
	}
	return CleanName(base)
}

// sameType reports whether a file suffix already names the type whose
// extension is ext. Plain text may be stored as .txt or .md.
func sameType(suffix, ext string) bool {
	suffix = strings.ToLower(suffix)
	if suffix == ext {
		return true
	}
	text := func(e string) bool { return e == ".txt" || e == ".md" }
	return text(suffix) && text(ext)
}

// TranslationName returns the object name of the Markdown translation of
// a paper: "paper.pdf" becomes "paper.md".
func TranslationName(name string) string {
	return strings.TrimSuffix(name, path.Ext(name)) + ".md"
}

// UniqueObjectName returns name, or name with a numeric suffix before the
// extension when an object already uses it.
func UniqueObjectName(ctx context.Context, s Store, name string) (string, error) {
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := name
	for i := 1; ; i++ {
		ok, err := Exists(ctx, s, candidate)
		if err != nil {
			return "", err
		}
		if !ok {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s_%d%s", stem, i, ext)
	}
}
