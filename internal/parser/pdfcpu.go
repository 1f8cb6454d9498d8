package parser

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var disableConfigDir sync.Once

func pdfcpuConfig() *model.Configuration {
	disableConfigDir.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

func pdfcpuPageCount(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("empty pdf")
	}
	n, err := api.PageCount(bytes.NewReader(data), pdfcpuConfig())
	if err != nil {
		return 0, fmt.Errorf("read pdf: %w", err)
	}
	if n == 0 {
		return 0, fmt.Errorf("pdf has no pages")
	}
	return n, nil
}
