package fault

// Localized user-facing notices.
var notices = map[Kind]string{
	Unintelligible:         "آپ کی آواز واضح نہیں ہے - براہ کرم دوبارہ کوشش کریں۔",
	TranscriberUnavailable: "معذرت، سسٹم کی سروس مصروف ہے، براہ کرم دوبارہ کوشش کریں۔",
	CompletionAuth:         "معذرت، جواب دینے والی سروس کی تصدیق ناکام ہو گئی۔ براہ کرم API کلید کی جانچ کریں۔",
	CompletionRateLimited:  "معذرت، درخواستوں کی حد پوری ہو گئی ہے۔ براہ کرم کچھ دیر بعد دوبارہ کوشش کریں۔",
	CompletionFailed:       "معذرت، جواب تیار کرنے میں مسئلہ پیش آیا۔ براہ کرم دوبارہ کوشش کریں۔",
	SynthesisFailed:        "معذرت، جواب کی آواز تیار نہیں ہو سکی۔",
	Unexpected:             "معذرت، ایک غیر متوقع خرابی پیش آئی۔ براہ کرم دوبارہ کوشش کریں۔",
}

// Placeholder user texts recorded when the capture could not be transcribed.
var placeholders = map[Kind]string{
	Unintelligible:         "کچھ غیر واضح الفاظ",
	TranscriberUnavailable: "کچھ الفاظ",
}

// Notice returns the localized message shown in place of a reply.
func Notice(kind Kind) string {
	if msg, ok := notices[kind]; ok {
		return msg
	}
	return notices[Unexpected]
}

// Placeholder returns the stand-in user text for a failed transcription.
func Placeholder(kind Kind) string {
	if text, ok := placeholders[kind]; ok {
		return text
	}
	return placeholders[TranscriberUnavailable]
}
