package stil

import "strings"

// ExpandVecData expands repeat compression in vector data, e.g.
// "\r3 X" -> "XXX" and "XLLL \r2 X HHH" -> "XLLLXXHHH". Repeats are
// expanded left to right in a single scan; all whitespace is removed.
func ExpandVecData(data string) string {
	var b strings.Builder
	b.Grow(len(data))

	i := 0
	for i < len(data) {
		c := data[i]
		switch {
		case c == '\\' && i+1 < len(data) && data[i+1] == 'r':
			j := i + 2
			count := 0
			for j < len(data) && data[j] >= '0' && data[j] <= '9' {
				count = count*10 + int(data[j]-'0')
				j++
			}
			for j < len(data) && isVecSpace(data[j]) {
				j++
			}
			k := j
			for k < len(data) && !isVecSpace(data[k]) && data[k] != '\\' && data[k] != ';' {
				k++
			}
			token := data[j:k]
			for r := 0; r < count; r++ {
				b.WriteString(token)
			}
			i = k
		case isVecSpace(c) || c == ';':
			i++
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

func isVecSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}
