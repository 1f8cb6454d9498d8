package llm

import "strings"

const (
	CleanSystemPrompt     = "你是一个专业的学术论文文本清洗助手，专门处理PDF提取的文本内容。"
	ReorderSystemPrompt   = "你是一个专业的学术文本排序专家，专门优化文本的逻辑顺序和连贯性。"
	TranslateSystemPrompt = "你是一个专业的学术论文翻译专家。"
)

const cleanInstructions = `你是一个专业的学术论文文本清洗助手。请对以下英文论文文本进行清洗和结构化：

清洗规则：
1. 识别数学公式，转换为LaTeX格式并用$$包裹，识别行内公式和行间公式，公式需要正确换行
2. 识别标题，用<Title></Title>包裹
3. 识别段落结束，用<End>标记
4. 移除无关内容：作者姓名、邮箱、参考文献编号、页码、注脚、页眉页脚、表格等
5. 保留图片和表格的标题

输入文本：
`

const reorderInstructions = `你是一个专业的学术文本排序专家。请分析以下文本的句子顺序，如果存在语义不连贯的问题，请重新排列句子顺序：

要求：
1. 保持学术论文的逻辑结构
2. 确保句子之间的语义连贯
3. 保留所有原始内容，只调整顺序
4. 如果顺序正确，直接输出原文
5. 保持段落结构和标题

输入文本：
`

const translateInstructions = `你是一个专业的学术论文翻译专家。请将以下英文学术论文文本翻译成中文：

要求：
1. 保持学术性和准确性
2. 保留LaTeX公式格式（用$$包裹的数学公式）
3. 保持标题和段落结构
4. 使用准确的学术术语
5. 参考文献不需要翻译，保留参考文献英文文本

英文原文：
`

// CleanPrompt asks the model to strip noise from raw PDF text and tag
// titles and paragraph ends.
func CleanPrompt(chunk string) string {
	return buildPrompt(cleanInstructions, chunk, "请输出清洗后的文本：")
}

// ReorderPrompt asks the model to restore sentence order without adding or
// dropping content.
func ReorderPrompt(chunk string) string {
	return buildPrompt(reorderInstructions, chunk, "请输出排序后的文本：")
}

// TranslatePrompt asks for a Chinese translation that keeps math and
// heading structure.
func TranslatePrompt(chunk string) string {
	return buildPrompt(translateInstructions, chunk, "请输出中文翻译：")
}

func buildPrompt(instructions, chunk, tail string) string {
	var sb strings.Builder
	sb.Grow(len(instructions) + len(chunk) + len(tail) + 4)
	sb.WriteString(instructions)
	sb.WriteString(chunk)
	sb.WriteString("\n\n")
	sb.WriteString(tail)
	return sb.String()
}
