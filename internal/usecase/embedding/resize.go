package embedding

// Resize fits v to dim elements: truncates longer vectors and right-pads shorter ones with zeros.
// The result is always a fresh slice of length dim (empty for dim <= 0).
func Resize(v []float32, dim int) []float32 {
	if dim <= 0 {
		return []float32{}
	}
	out := make([]float32, dim)
	copy(out, v)
	return out
}
