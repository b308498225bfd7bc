package genx

// CollectText drains s, calling onDelta with every text chunk, and
// returns the full text. A regular end (done or truncated) yields a nil
// error. The stream is closed before returning.
func CollectText(s Stream, onDelta func(string)) (string, error) {
	defer s.Close()
	var text []byte
	for {
		chunk, err := s.Next()
		if err != nil {
			if IsEnd(err) {
				return string(text), nil
			}
			return string(text), err
		}
		if chunk == nil {
			continue
		}
		if t, ok := chunk.Part.(Text); ok && t != "" {
			text = append(text, t...)
			if onDelta != nil {
				onDelta(string(t))
			}
		}
	}
}
