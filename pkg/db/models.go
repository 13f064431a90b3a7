package db

// WordEntry is one row of the word book: a lowercase word and how many times
// it has been seen since the last rebuild or clear.
type WordEntry struct {
	Word      string
	Frequency int
}
