package encoding

// Encode converts UTF-8 text into the named encoding for writing to a
// remote byte stream. Unknown names and encoder failures fall back to
// the raw UTF-8 bytes, which is always safe to send.
func Encode(name, text string) []byte {
	c, ok := candidateFor(name)
	if !ok || c.name == "utf-8" {
		return []byte(text)
	}

	out, err := c.enc.NewEncoder().Bytes([]byte(text))
	if err != nil {
		return []byte(text)
	}
	return out
}
