package protocol

const (
	fragmentEndOfFrame = 1 << 15
	fragmentParity     = 1 << 14

	// MaxFragmentIndex is the largest index the 14-bit field can carry
	MaxFragmentIndex = fragmentParity - 1
)

// Fragment is the unpacked fragment field of frame-carrying opcodes
type Fragment struct {
	EndOfFrame bool   // last fragment of the frame
	Parity     bool   // alternates between consecutive frames
	Index      uint16 // 14-bit position of the fragment within the frame
}

// PackFragment packs f into the 16-bit wire field. Index bits above 14 are discarded.
func PackFragment(f Fragment) uint16 {
	v := f.Index & MaxFragmentIndex
	if f.EndOfFrame {
		v |= fragmentEndOfFrame
	}
	if f.Parity {
		v |= fragmentParity
	}
	return v
}

// UnpackFragment splits the 16-bit wire field into its parts
func UnpackFragment(v uint16) Fragment {
	return Fragment{
		EndOfFrame: v&fragmentEndOfFrame != 0,
		Parity:     v&fragmentParity != 0,
		Index:      v & MaxFragmentIndex,
	}
}
