package keymodel

import "strconv"

// minorNotation and majorNotation give the 12 Camelot-wheel entries per
// mode, in Camelot numeric order (1..12), per spec §4.7's fixed table.
var (
	minorNotation = [12]string{"G#m", "D#m", "A#m", "Fm", "Cm", "Gm", "Dm", "Am", "Em", "Bm", "F#m", "C#m"}
	majorNotation = [12]string{"B", "F#", "Db", "Ab", "Eb", "Bb", "F", "C", "G", "D", "A", "E"}
)

// classToResult maps a 0..23 model class index to its Camelot code and
// notation: 0..11 are minor keys 1A..12A, 12..23 are major keys 1B..12B.
func classToResult(class int) (camelot, notation string) {
	if class < 12 {
		return camelotCode(class+1, "A"), minorNotation[class]
	}
	m := class - 12
	return camelotCode(m+1, "B"), majorNotation[m]
}

func camelotCode(n int, mode string) string {
	return strconv.Itoa(n) + mode
}
