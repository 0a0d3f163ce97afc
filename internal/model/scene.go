package model

// ImagePrompt は画像生成プロンプトの構造化フィールド。
type ImagePrompt struct {
	Subject      string   `json:"subject" jsonschema_description:"The main subject of the image"`
	Action       string   `json:"action" jsonschema_description:"What the subject is doing"`
	Setting      string   `json:"setting" jsonschema_description:"Where the scene takes place"`
	Style        string   `json:"style" jsonschema_description:"Visual style, e.g. cinematic photo, watercolor"`
	Lighting     string   `json:"lighting" jsonschema_description:"Lighting conditions"`
	Mood         string   `json:"mood" jsonschema_description:"Emotional tone of the image"`
	CameraAngle  string   `json:"cameraAngle" jsonschema_description:"Camera angle or framing"`
	ColorPalette string   `json:"colorPalette" jsonschema_description:"Dominant colors"`
	Details      []string `json:"details" jsonschema_description:"Additional concrete visual details"`
	Negative     string   `json:"negative" jsonschema_description:"Things that must not appear in the image"`
}

// ClipPrompt は動画クリップ生成プロンプトの構造化フィールド。
type ClipPrompt struct {
	Motion          string `json:"motion" jsonschema_description:"Overall motion in the clip"`
	CameraMovement  string `json:"cameraMovement" jsonschema_description:"Camera movement such as slow dolly in or pan left"`
	SubjectAction   string `json:"subjectAction" jsonschema_description:"What the subject does during the clip"`
	Pacing          string `json:"pacing" jsonschema_description:"Pacing of the clip, e.g. slow, energetic"`
	Transition      string `json:"transition" jsonschema_description:"Transition into the next clip"`
	Style           string `json:"style" jsonschema_description:"Visual style of the clip"`
	DurationSeconds int    `json:"durationSeconds" jsonschema_description:"Clip length in seconds, 5 or 10"`
}

// Scene は台本から切り出されたシーンを表す。
// 画像生成と動画クリップ生成の入力となる。
type Scene struct {
	Index           int         `json:"index"`
	Text            string      `json:"text"`
	Narration       string      `json:"narration"`
	DurationSeconds float64     `json:"durationSeconds"`
	ImagePrompt     ImagePrompt `json:"imagePrompt"`
	ClipPrompt      ClipPrompt  `json:"clipPrompt"`
	ImagePromptText string      `json:"imagePromptText"`
	ClipPromptText  string      `json:"clipPromptText"`
}

// Caption はSNS投稿用のキャプション。
type Caption struct {
	Caption  string   `json:"caption"`
	Hashtags []string `json:"hashtags"`
}
