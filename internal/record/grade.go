package record

import (
	"strconv"
	"strings"
)

// CompareGrades orders French-scale grades for sport ("9a", "9a+", "9b/+")
// and boulder ("8C", "8C+/9A") alike. Slash grades sit between their
// neighbours. Unparseable grades rank below every parseable one and compare
// bytewise among themselves.
func CompareGrades(a, b string) int {
	ra, okA := gradeRank(a)
	rb, okB := gradeRank(b)
	switch {
	case okA && okB:
		switch {
		case ra < rb:
			return -1
		case ra > rb:
			return 1
		default:
			return 0
		}
	case okA:
		return 1
	case okB:
		return -1
	default:
		return strings.Compare(a, b)
	}
}

func gradeRank(grade string) (int, bool) {
	g := strings.ToLower(strings.TrimSpace(grade))
	i := 0
	for i < len(g) && g[i] >= '0' && g[i] <= '9' {
		i++
	}
	if i == 0 || i == len(g) {
		return 0, false
	}
	number, err := strconv.Atoi(g[:i])
	if err != nil {
		return 0, false
	}
	letter := g[i]
	if letter < 'a' || letter > 'c' {
		return 0, false
	}

	var step int
	switch rest := g[i+1:]; {
	case rest == "":
		step = 0
	case rest == "/+":
		step = 1
	case rest == "+":
		step = 2
	case strings.HasPrefix(rest, "+/"), strings.HasPrefix(rest, "/"):
		step = 3
	default:
		return 0, false
	}
	return (number*3+int(letter-'a'))*4 + step, true
}
