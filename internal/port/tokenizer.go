package port

type Tokenizer interface {
	Tokenize(text string) []string

	CountWords(text string) int
}
