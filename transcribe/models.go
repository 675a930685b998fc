package transcribe

import "slices"

// DefaultModel is used when a request names no model.
const DefaultModel = "medium"

// whisperModels lists the model names the whisper CLI accepts.
var whisperModels = []string{
	"tiny", "tiny.en",
	"base", "base.en",
	"small", "small.en",
	"medium", "medium.en",
	"large", "large-v1", "large-v2", "large-v3",
	"large-v3-turbo", "turbo",
}

// Models returns the known recognizer model names.
func Models() []string {
	return slices.Clone(whisperModels)
}

// KnownModel reports whether name is a known recognizer model.
func KnownModel(name string) bool {
	return slices.Contains(whisperModels, name)
}
