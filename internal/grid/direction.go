package grid

import "strings"

// Direction is a set of axis steps. Flags may be combined; opposing flags
// cancel out.
type Direction uint8

const (
	Up       Direction = 1 << iota // +y
	Down                           // -y
	Left                           // -x
	Right                          // +x
	Forward                        // -z (towards bounds.Max.Z)
	Backward                       // +z

	Horizontal = Left | Right | Forward | Backward
	Vertical   = Up | Down
	AllAxes    = Horizontal | Vertical
)

// Axes lists the six single-axis directions in search order.
var Axes = [6]Direction{Right, Left, Backward, Forward, Up, Down}

// Apply returns l moved one cell along every flag set in d.
func (d Direction) Apply(l Location) Location {
	if d&Up != 0 {
		l.Y++
	}
	if d&Down != 0 {
		l.Y--
	}
	if d&Left != 0 {
		l.X--
	}
	if d&Right != 0 {
		l.X++
	}
	if d&Forward != 0 {
		l.Z--
	}
	if d&Backward != 0 {
		l.Z++
	}
	return l
}

// Opposite mirrors every flag in d.
func (d Direction) Opposite() Direction {
	var o Direction
	if d&Up != 0 {
		o |= Down
	}
	if d&Down != 0 {
		o |= Up
	}
	if d&Left != 0 {
		o |= Right
	}
	if d&Right != 0 {
		o |= Left
	}
	if d&Forward != 0 {
		o |= Backward
	}
	if d&Backward != 0 {
		o |= Forward
	}
	return o
}

// Between returns the single-axis direction leading from a to an adjacent b,
// or zero if the two locations are not face neighbours.
func Between(a, b Location) Direction {
	for _, d := range Axes {
		if d.Apply(a) == b {
			return d
		}
	}
	return 0
}

func (d Direction) String() string {
	if d == 0 {
		return "none"
	}
	names := []struct {
		flag Direction
		name string
	}{
		{Up, "up"}, {Down, "down"}, {Left, "left"},
		{Right, "right"}, {Forward, "forward"}, {Backward, "backward"},
	}
	var parts []string
	for _, n := range names {
		if d&n.flag != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}
