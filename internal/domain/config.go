package domain

// KeyPrefix namespaces every key this service writes to the shared cache.
const KeyPrefix = "flagsearch:"

// EncoderConfig describes the embedding space the corpus was built in.
type EncoderConfig struct {
	Model      string
	Dimensions int
	ImageSize  int
}

// DefaultEncoderConfig returns the settings for CLIP ViT-B/32, the model the reference corpus is encoded with.
func DefaultEncoderConfig() EncoderConfig {
	return EncoderConfig{
		Model:      "clip-ViT-B-32",
		Dimensions: 512,
		ImageSize:  224,
	}
}
