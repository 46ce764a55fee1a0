// internal/services/styles.go
package services

// StyleProfile 成稿风格定义
// 同一份注册表同时服务快速成稿与提纲润色，温度与提示词一处维护
type StyleProfile struct {
	Name              string  `json:"name"`
	Label             string  `json:"label"`
	SystemPrompt      string  `json:"system_prompt"`
	PolishInstruction string  `json:"polish_instruction"`
	Temperature       float32 `json:"temperature"`
}

var styleRegistry = map[string]StyleProfile{
	"default": {
		Name:              "default",
		Label:             "标准叙事",
		SystemPrompt:      "你是一位资深的口述史编辑，擅长把访谈素材整理成流畅自然的第一人称叙事文章。保留讲述者的语气和关键细节，结构清晰，过渡自然。",
		PolishInstruction: "将以下初稿润色为流畅自然的叙事文章，保持第一人称视角，修正口语化表达但保留讲述者的个人语气。",
		Temperature:       0.7,
	},
	"qa": {
		Name:              "qa",
		Label:             "问答实录",
		SystemPrompt:      "你是一位严谨的访谈编辑，负责把访谈素材整理为问答体实录。忠实于原始问答，只做必要的文字清理，不增删事实。",
		PolishInstruction: "将以下初稿整理为问答体实录，以问答交替的形式呈现，忠实保留原始内容，仅清理明显的口误和重复。",
		Temperature:       0.3,
	},
	"emotional": {
		Name:              "emotional",
		Label:             "情感散文",
		SystemPrompt:      "你是一位感性细腻的散文作家，善于从访谈素材中捕捉情感脉络，写出打动人心的散文式文章。允许适度的文学化表达，但不虚构事实。",
		PolishInstruction: "将以下初稿改写为情感充沛的散文式文章，突出讲述者的情感起伏和内心感受，语言优美但不脱离事实。",
		Temperature:       0.9,
	},
	"tech": {
		Name:              "tech",
		Label:             "技术纪实",
		SystemPrompt:      "你是一位技术写作编辑，擅长把访谈素材整理成准确清晰的纪实文章。重视术语准确、逻辑严密、信息密度高，避免抒情修辞。",
		PolishInstruction: "将以下初稿整理为准确清晰的技术纪实文章，术语规范，逻辑链完整，删去与主题无关的闲谈。",
		Temperature:       0.3,
	},
	"literary": {
		Name:              "literary",
		Label:             "文学特稿",
		SystemPrompt:      "你是一位特稿记者，擅长用文学化的笔法写人物特稿。注重场景还原、细节刻画和叙事节奏，以第三人称视角讲述。",
		PolishInstruction: "将以下初稿改写为文学化的人物特稿，用第三人称叙述，加强场景感和细节描写，保持事实准确。",
		Temperature:       0.8,
	},
	"business": {
		Name:              "business",
		Label:             "商业报道",
		SystemPrompt:      "你是一位商业媒体编辑，擅长把访谈素材整理成商业报道。重点突出决策、数据和行业背景，语言干练专业。",
		PolishInstruction: "将以下初稿整理为商业报道风格的文章，突出关键决策与业务要点，语言简练专业，适当补充承接性过渡。",
		Temperature:       0.4,
	},
}

// StyleFor 按名称返回风格定义，未知名称回落到default
func StyleFor(name string) StyleProfile {
	if profile, ok := styleRegistry[name]; ok {
		return profile
	}
	return styleRegistry["default"]
}

// ListStyles 返回所有注册的风格
func ListStyles() []StyleProfile {
	names := []string{"default", "qa", "emotional", "tech", "literary", "business"}
	profiles := make([]StyleProfile, 0, len(names))
	for _, name := range names {
		profiles = append(profiles, styleRegistry[name])
	}
	return profiles
}
