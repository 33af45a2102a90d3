package provider

// Message OpenAI chat 消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatPayload OpenAI 兼容的 chat 请求体。
// top_k 和两个 penalty 只在调用方给了非默认值时才出现，避免不认识这些字段的 provider 报错
type ChatPayload struct {
	Model            string    `json:"model,omitempty"`
	Messages         []Message `json:"messages"`
	Temperature      float64   `json:"temperature"`
	TopP             float64   `json:"top_p"`
	MaxTokens        int       `json:"max_tokens"`
	TopK             *int      `json:"top_k,omitempty"`
	FrequencyPenalty *float64  `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64  `json:"presence_penalty,omitempty"`
}

// GenerationParams 单个 target 的生成参数，nil 表示使用默认值
type GenerationParams struct {
	Model            string
	SystemPrompt     string
	Temperature      *float64
	TopP             *float64
	TopK             *int
	MaxTokens        *int
	FrequencyPenalty *float64
	PresencePenalty  *float64
}

func BuildChatPayload(prompt string, p GenerationParams) ChatPayload {
	messages := make([]Message, 0, 2)
	if p.SystemPrompt != "" {
		messages = append(messages, Message{Role: "system", Content: p.SystemPrompt})
	}
	messages = append(messages, Message{Role: "user", Content: prompt})

	payload := ChatPayload{
		Model:       p.Model,
		Messages:    messages,
		Temperature: DefaultTemperature,
		TopP:        DefaultTopP,
		MaxTokens:   DefaultMaxTokens,
	}

	if p.Temperature != nil {
		payload.Temperature = *p.Temperature
	}
	if p.TopP != nil {
		payload.TopP = *p.TopP
	}
	if p.MaxTokens != nil && *p.MaxTokens > 0 {
		payload.MaxTokens = *p.MaxTokens
	}
	if p.TopK != nil && *p.TopK > 0 {
		topK := *p.TopK
		payload.TopK = &topK
	}
	if p.FrequencyPenalty != nil && *p.FrequencyPenalty != 0 {
		v := *p.FrequencyPenalty
		payload.FrequencyPenalty = &v
	}
	if p.PresencePenalty != nil && *p.PresencePenalty != 0 {
		v := *p.PresencePenalty
		payload.PresencePenalty = &v
	}

	return payload
}
