// Package normalize 把各家模型接口五花八门的响应体统一成答案文本、模型名和 token 用量。
//
// 每一种响应形状都是一个独立的提取策略，按顺序尝试，第一个命中的生效。
// 新 provider 的形状只需要往对应的策略列表里追加。
package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Result 归一化结果，数值字段缺失时为 nil
type Result struct {
	AnswerText       string  `json:"answer_text"`
	ModelName        *string `json:"model_name,omitempty"`
	PromptTokens     *int    `json:"prompt_tokens,omitempty"`
	CompletionTokens *int    `json:"completion_tokens,omitempty"`
	TotalTokens      *int    `json:"total_tokens,omitempty"`
}

// TextExtractor 从 JSON 对象中提取一段文本
type TextExtractor func(body map[string]any) (string, bool)

// AnswerExtractors 答案提取策略，按优先级排列
var AnswerExtractors = []TextExtractor{
	openAIMessageContent,
	openAIChoiceText,
	firstField("answer", "response", "content", "text", "result", "message", "output"),
}

// ModelExtractors 模型名提取策略
var ModelExtractors = []TextExtractor{
	firstNonBlankString("model", "modelName", "usedModel"),
}

var (
	usageKeys      = []string{"usage", "tokenUsage", "token_usage", "tokens"}
	promptKeys     = []string{"prompt_tokens", "promptTokens", "input_tokens", "inputTokens"}
	completionKeys = []string{"completion_tokens", "completionTokens", "output_tokens", "outputTokens"}
	totalKeys      = []string{"total_tokens", "totalTokens"}
)

// Normalize 接受 string、[]byte、json.RawMessage 或已解码的 JSON 值，永不 panic
func Normalize(raw any) Result {
	body, text, ok := decode(raw)
	if !ok {
		return Result{AnswerText: text}
	}

	obj, isObject := body.(map[string]any)
	if !isObject {
		return Result{AnswerText: stringify(body)}
	}

	res := Result{AnswerText: stringify(obj)}
	for _, extract := range AnswerExtractors {
		if answer, found := extract(obj); found {
			res.AnswerText = answer
			break
		}
	}

	for _, extract := range ModelExtractors {
		if name, found := extract(obj); found {
			res.ModelName = &name
			break
		}
	}

	res.PromptTokens, res.CompletionTokens, res.TotalTokens = extractUsage(obj)
	return res
}

// decode 返回解码后的 JSON 值；非 JSON 文本返回 ok=false 和原文
func decode(raw any) (any, string, bool) {
	var data []byte
	switch v := raw.(type) {
	case nil:
		return nil, "", false
	case string:
		data = []byte(v)
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		return v, "", true
	}

	var body any
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, string(data), false
	}
	return body, "", true
}

func firstChoice(obj map[string]any) (map[string]any, bool) {
	choices, ok := obj["choices"].([]any)
	if !ok || len(choices) == 0 {
		return nil, false
	}
	choice, ok := choices[0].(map[string]any)
	return choice, ok
}

func openAIMessageContent(obj map[string]any) (string, bool) {
	choice, ok := firstChoice(obj)
	if !ok {
		return "", false
	}
	msg, ok := choice["message"].(map[string]any)
	if !ok {
		return "", false
	}
	content, ok := msg["content"].(string)
	return content, ok
}

func openAIChoiceText(obj map[string]any) (string, bool) {
	choice, ok := firstChoice(obj)
	if !ok {
		return "", false
	}
	text, ok := choice["text"].(string)
	return text, ok
}

func firstField(keys ...string) TextExtractor {
	return func(obj map[string]any) (string, bool) {
		for _, key := range keys {
			v, ok := obj[key]
			if !ok || v == nil {
				continue
			}
			return valueText(v), true
		}
		return "", false
	}
}

func firstNonBlankString(keys ...string) TextExtractor {
	return func(obj map[string]any) (string, bool) {
		for _, key := range keys {
			s, ok := obj[key].(string)
			if !ok {
				continue
			}
			if s = strings.TrimSpace(s); s != "" {
				return s, true
			}
		}
		return "", false
	}
}

// valueText 字段值转文本：字符串原样返回，{content: "..."} 取 content，其余序列化
func valueText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		if content, ok := t["content"].(string); ok {
			return content
		}
	}
	return stringify(v)
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func extractUsage(obj map[string]any) (prompt, completion, total *int) {
	var usage map[string]any
	for _, key := range usageKeys {
		if u, ok := obj[key].(map[string]any); ok {
			usage = u
			break
		}
	}
	if usage == nil {
		return nil, nil, nil
	}

	prompt = firstNumber(usage, promptKeys)
	completion = firstNumber(usage, completionKeys)
	total = firstNumber(usage, totalKeys)
	if total == nil && prompt != nil && completion != nil {
		sum := *prompt + *completion
		total = &sum
	}
	return prompt, completion, total
}

func firstNumber(m map[string]any, keys []string) *int {
	for _, key := range keys {
		v, ok := m[key]
		if !ok || v == nil {
			continue
		}
		// 无法转成数字的视为缺失，继续尝试下一个别名
		if n, ok := toInt(v); ok {
			return &n
		}
	}
	return nil
}

func toInt(v any) (int, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int:
		return t, t >= 0
	case int64:
		return int(t), t >= 0
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, false
	}
	return int(f), true
}
