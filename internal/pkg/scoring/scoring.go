// Package scoring 计算单次模型调用的成本估算和速度分。
//
// 准确率不在这里计算：自由文本答案无法可靠地自动打分，只能由人工评审写入。
package scoring

import "math"

const tokensPerMillion = 1_000_000

// ComputeCost 按每百万 token 单价估算成本（美元），保留 4 位小数。
// 未配置定价（或结果恰好为 0）时返回 nil，而不是无意义的 $0.0000。
func ComputeCost(promptTokens, completionTokens *int, inputPricePerMillion, outputPricePerMillion *float64) *float64 {
	inputCost := partCost(promptTokens, inputPricePerMillion)
	outputCost := partCost(completionTokens, outputPricePerMillion)

	total := round(inputCost+outputCost, 4)
	if total == 0 {
		return nil
	}
	return &total
}

// ComputeSpeedScore 返回 max(0, 1 - latency/timeout)，截断到 2 位小数。
// 不做四舍五入：有可测延迟时分数一定小于 1。
// 例如 1000ms / 3000ms 得 0.66，而不是四舍五入的 0.67。
// 这是相对超时预算的度量，不是基准测试的绝对值。
func ComputeSpeedScore(latencyMs, timeoutMs int64) float64 {
	if timeoutMs <= 0 {
		return 0
	}
	if latencyMs < 0 {
		latencyMs = 0
	}
	score := 1 - float64(latencyMs)/float64(timeoutMs)
	if score < 0 {
		return 0
	}
	return truncate(score, 2)
}

func partCost(tokens *int, price *float64) float64 {
	if tokens == nil || price == nil {
		return 0
	}
	return float64(*tokens) * *price / tokensPerMillion
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func truncate(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Floor(v*p+1e-9) / p
}
