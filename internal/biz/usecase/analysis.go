package usecase

import (
	"regexp"
	"strings"
)

var keywordRe = regexp.MustCompile(`[A-Za-z]{3,}|\p{Han}{2,6}`)

var stopWords = map[string]bool{
	"the": true, "and": true, "you": true, "for": true, "are": true, "this": true,
	"that": true, "with": true, "have": true, "what": true, "was": true, "not": true,
	"but": true, "can": true, "just": true, "there": true, "they": true, "from": true,
	"这个": true, "那个": true, "我们": true, "你们": true, "他们": true, "什么": true,
	"怎么": true, "就是": true, "还是": true, "可以": true, "没有": true, "一下": true,
	"现在": true, "然后": true, "因为": true, "所以": true, "但是": true, "如果": true,
	"自己": true, "已经": true, "一个": true, "真的": true, "感觉": true, "觉得": true,
}

// ExtractKeywords returns the topic keywords of text: alphabetic runs of
// at least 3 letters and CJK runs of 2 to 6 characters, lower-cased,
// without stop words, de-duplicated in first-seen order.
func ExtractKeywords(text string) []string {
	matches := keywordRe.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	keywords := make([]string, 0, len(matches))
	for _, m := range matches {
		kw := strings.ToLower(m)
		if stopWords[kw] || seen[kw] {
			continue
		}
		seen[kw] = true
		keywords = append(keywords, kw)
	}
	return keywords
}

// EmotionSample is the emotion read off a single message
type EmotionSample struct {
	Score    float64
	Question bool
}

var (
	positiveWords  = []string{"开心", "高兴", "喜欢", "哈哈", "好耶", "太好了", "厉害", "棒", "爱了", "感谢", "谢谢", "nice", "great", "love", "awesome", "cool", "happy", "thanks"}
	negativeWords  = []string{"难过", "伤心", "生气", "烦", "讨厌", "累", "崩溃", "无语", "郁闷", "焦虑", "哭", "失望", "糟糕", "sad", "angry", "hate", "tired", "upset", "annoying", "terrible"}
	intensityWords = []string{"非常", "特别", "超级", "太", "真的", "very", "so ", "really", "super"}
	questionWords  = []string{"?", "？", "吗", "呢", "怎么", "为什么", "啥", "how", "why", "what"}
)

func countHits(lower string, words []string) int {
	n := 0
	for _, w := range words {
		if strings.Contains(lower, w) {
			n++
		}
	}
	return n
}

// ClassifyEmotion scores text by additive keyword hits, clipped to [-1,1]
func ClassifyEmotion(text string) EmotionSample {
	lower := strings.ToLower(text)
	score := 0.3*float64(countHits(lower, positiveWords)) - 0.35*float64(countHits(lower, negativeWords))

	if score != 0 && containsAny(lower, intensityWords) {
		score *= 1.5
	}
	if strings.ContainsAny(lower, "!！") {
		switch {
		case score > 0:
			score += 0.15
		case score < 0:
			score -= 0.1
		default:
			score += 0.1
		}
	}

	return EmotionSample{
		Score:    clamp(score, -1, 1),
		Question: containsAny(lower, questionWords),
	}
}

const (
	emotionHistoryWeight = 0.68
	emotionSampleWeight  = 0.32
)

// smoothEmotion merges a new sample into the running score
func smoothEmotion(old float64, sample EmotionSample) float64 {
	return clamp(emotionHistoryWeight*old+emotionSampleWeight*sample.Score, -1, 1)
}
