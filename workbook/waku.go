package workbook

// Waku (gate) colors, indexed by gate number 1..8.
var wakuColors = map[int]string{
	1: "#ffffff",
	2: "#000000",
	3: "#ff0000",
	4: "#0000ff",
	5: "#ffff00",
	6: "#00ff00",
	7: "#ff8000",
	8: "#ff8080",
}

const (
	fontBlack = "#000000"
	fontWhite = "#ffffff"
)

// WakuColor returns the background and font colors of a gate cell. Light
// gates (1, 5, 6) get black text, the rest white. A gate outside 1..8 is
// rendered black on white.
func WakuColor(gate int) (bg, font string) {
	bg, ok := wakuColors[gate]
	if !ok {
		return "#ffffff", fontBlack
	}
	switch gate {
	case 1, 5, 6:
		return bg, fontBlack
	}
	return bg, fontWhite
}

// Run is a maximal block of consecutive rows sharing a gate number.
type Run struct {
	Start int
	Len   int
	Gate  int
}

// GateRuns groups consecutive equal gates. The input must already be in
// sheet order; runs are reported in that order.
func GateRuns(gates []int) []Run {
	var runs []Run
	for i := 0; i < len(gates); {
		j := i + 1
		for j < len(gates) && gates[j] == gates[i] {
			j++
		}
		runs = append(runs, Run{Start: i, Len: j - i, Gate: gates[i]})
		i = j
	}
	return runs
}
