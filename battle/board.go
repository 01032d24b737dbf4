package battle

import (
	"fmt"
	"slices"
	"strconv"
)

// FleetSizes is the canonical fleet: every board holds exactly these ship sizes.
var FleetSizes = []int{5, 4, 3, 3, 2}

var catalogNames = map[int][]string{
	5: {"Carrier"},
	4: {"Battleship"},
	3: {"Cruiser", "Submarine"},
	2: {"Destroyer"},
}

// AttackOutcome is the result of a successful ApplyAttack. Sunk is set only when this hit
// completed the ship.
type AttackOutcome struct {
	Cell Cell
	Hit  bool
	Sunk *Ship
}

// Board is one player's grid: their fleet and the attacks received on it.
// A Board is not safe for concurrent use; it is owned by its Match.
type Board struct {
	ships    []Ship
	hits     []int
	occupant [BoardSize][BoardSize]int8 // ship index + 1, 0 for water
	attacked [BoardSize][BoardSize]bool
	attacks  []Attack
}

func NewBoard() *Board {
	return &Board{}
}

func (b *Board) Placed() bool {
	return len(b.ships) > 0
}

// PlaceFleet validates and installs the fleet. It can succeed only once per board.
func (b *Board) PlaceFleet(ships []Ship) error {
	if b.Placed() {
		return ErrAlreadyPlaced
	}

	if len(ships) != len(FleetSizes) {
		return fmt.Errorf("%w: expected %d ships, got %d", ErrInvalidShipSet, len(FleetSizes), len(ships))
	}

	sizes := make([]int, 0, len(ships))
	for _, s := range ships {
		sizes = append(sizes, s.Size)
	}
	slices.Sort(sizes)
	want := slices.Clone(FleetSizes)
	slices.Sort(want)
	if !slices.Equal(sizes, want) {
		return fmt.Errorf("%w: sizes %v", ErrInvalidShipSet, sizes)
	}

	var occupant [BoardSize][BoardSize]int8
	placed := make([]Ship, 0, len(ships))
	used := map[int]int{}

	for i, s := range ships {
		if err := validateShape(s); err != nil {
			return err
		}
		for _, c := range s.Positions {
			if occupant[c.Row][c.Col] != 0 {
				return fmt.Errorf("%w: cell %s", ErrOverlap, c)
			}
			occupant[c.Row][c.Col] = int8(i + 1)
		}

		s = s.clone()
		// ids are the server's, whatever the client sent
		s.ID = strconv.Itoa(i + 1)
		if s.Name == "" {
			names := catalogNames[s.Size]
			s.Name = names[used[s.Size]%len(names)]
			used[s.Size]++
		}
		placed = append(placed, s)
	}

	b.ships = placed
	b.hits = make([]int, len(placed))
	b.occupant = occupant
	return nil
}

func validateShape(s Ship) error {
	if len(s.Positions) != s.Size {
		return fmt.Errorf("%w: %q has %d positions for size %d", ErrMalformedShip, s.Name, len(s.Positions), s.Size)
	}
	for _, c := range s.Positions {
		if !c.inBounds() {
			return fmt.Errorf("%w: %q at %s", ErrOutOfBounds, s.Name, c)
		}
	}

	var step Cell
	switch s.Orientation {
	case Horizontal:
		step = Cell{Col: 1}
	case Vertical:
		step = Cell{Row: 1}
	default:
		return fmt.Errorf("%w: %q has orientation %q", ErrMalformedShip, s.Name, s.Orientation)
	}

	for i := 1; i < len(s.Positions); i++ {
		prev, cur := s.Positions[i-1], s.Positions[i]
		if cur.Row-prev.Row != step.Row || cur.Col-prev.Col != step.Col {
			return fmt.Errorf("%w: %q is not a contiguous %s line", ErrMalformedShip, s.Name, s.Orientation)
		}
	}
	return nil
}

// ApplyAttack records a shot on c. A cell can be scored only once.
func (b *Board) ApplyAttack(c Cell) (AttackOutcome, error) {
	if !c.inBounds() {
		return AttackOutcome{}, fmt.Errorf("%w: %s", ErrOutOfBounds, c)
	}
	if b.attacked[c.Row][c.Col] {
		return AttackOutcome{}, fmt.Errorf("%w: %s", ErrAlreadyAttacked, c)
	}

	b.attacked[c.Row][c.Col] = true
	out := AttackOutcome{Cell: c}

	if idx := b.occupant[c.Row][c.Col]; idx != 0 {
		i := int(idx) - 1
		out.Hit = true
		b.hits[i]++
		if b.hits[i] == b.ships[i].Size {
			sunk := b.ships[i].clone()
			out.Sunk = &sunk
		}
	}

	b.attacks = append(b.attacks, Attack{Cell: c, IsHit: out.Hit})
	return out, nil
}

// AllShipsSunk reports whether every placed ship is sunk. A board without a fleet has
// nothing to sink and never reports true.
func (b *Board) AllShipsSunk() bool {
	if !b.Placed() {
		return false
	}
	for i, s := range b.ships {
		if b.hits[i] < s.Size {
			return false
		}
	}
	return true
}

// Attacked reports whether c was already shot at, and whether that shot hit.
func (b *Board) Attacked(c Cell) (attacked, hit bool) {
	if !c.inBounds() || !b.attacked[c.Row][c.Col] {
		return false, false
	}
	return true, b.occupant[c.Row][c.Col] != 0
}

func (b *Board) Ships() []Ship {
	out := make([]Ship, len(b.ships))
	for i, s := range b.ships {
		out[i] = s.clone()
	}
	return out
}

func (b *Board) Attacks() []Attack {
	return append([]Attack{}, b.attacks...)
}

func (b *Board) SunkShips() []Ship {
	out := []Ship{}
	for i, s := range b.ships {
		if b.hits[i] >= s.Size {
			out = append(out, s.clone())
		}
	}
	return out
}

// HitsTaken is the number of successful shots received.
func (b *Board) HitsTaken() int {
	n := 0
	for _, a := range b.attacks {
		if a.IsHit {
			n++
		}
	}
	return n
}

func (b *Board) shipHits(i int) int {
	return b.hits[i]
}

// verify cross-checks the incremental bookkeeping against the raw attack log.
func (b *Board) verify() error {
	counted := make([]int, len(b.ships))
	for _, a := range b.attacks {
		if !a.Cell.inBounds() || !b.attacked[a.Cell.Row][a.Cell.Col] {
			return fmt.Errorf("%w: attack %s not marked on grid", ErrInvariantViolation, a.Cell)
		}
		idx := b.occupant[a.Cell.Row][a.Cell.Col]
		if a.IsHit != (idx != 0) {
			return fmt.Errorf("%w: attack %s recorded hit=%v", ErrInvariantViolation, a.Cell, a.IsHit)
		}
		if idx != 0 {
			counted[idx-1]++
		}
	}
	for i, s := range b.ships {
		if counted[i] != b.hits[i] || b.hits[i] > s.Size {
			return fmt.Errorf("%w: ship %q has %d hits, log says %d", ErrInvariantViolation, s.Name, b.hits[i], counted[i])
		}
	}
	return nil
}
