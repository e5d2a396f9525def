// Package prompts holds the per-scene LLM polishing prompts and the
// on-disk store for user overrides.
package prompts

import (
	"maps"
)

// Default system prompts for the background polishing stage, keyed by scene
// type. All prompts instruct the model to output only the rewritten text.
var defaults = map[string]string{
	"general": `你是一个语音转文字的后处理助手。请对以下语音识别结果进行润色：
1. 修正明显的语音识别错误
2. 删除口语化的语气词（嗯、啊、那个等）
3. 添加适当的标点符号
4. 保持原意，不要添加或删除实质内容

直接输出润色后的文本，不要任何解释。`,

	"coding": `你是一个编程场景的语音转文字助手。请润色以下语音识别结果：
1. 识别并正确格式化代码相关术语（变量名、函数名、技术术语）
2. 修正常见的编程术语识别错误
3. 删除口语化表达
4. 保持技术准确性

直接输出润色后的文本，不要任何解释。`,

	"writing": `你是一个写作场景的语音转文字助手。请润色以下语音识别结果：
1. 修正语法错误和不通顺的表达
2. 优化句子结构，使其更加书面化
3. 添加适当的标点符号
4. 保持原意和风格

直接输出润色后的文本，不要任何解释。`,

	"social": `你是一个社交聊天场景的语音转文字助手。请润色以下语音识别结果：
1. 保持口语化和轻松的风格
2. 修正明显的识别错误
3. 适当保留一些表达情感的语气词
4. 添加适当的标点和表情提示

直接输出润色后的文本，不要任何解释。`,
}

// Defaults returns a copy of the built-in prompts.
func Defaults() map[string]string {
	return maps.Clone(defaults)
}

// Default returns the built-in prompt for a scene type, falling back to the
// general prompt for unknown types.
func Default(sceneType string) string {
	if p, ok := defaults[sceneType]; ok {
		return p
	}
	return defaults["general"]
}
