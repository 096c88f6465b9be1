package world

// TileKind classifies tile content.
type TileKind uint8

const (
	TileEmpty TileKind = iota
	TileWall
	TileCorpse
	TileCell
)

// Tile is one grid slot. Cell is the occupant id when Kind == TileCell;
// Energy is the residual energy when Kind == TileCorpse.
type Tile struct {
	Kind   TileKind
	Cell   uint64
	Energy int
}

// Grid is the single shared spatial structure. It is mutated exclusively
// by the owning world's commit phase; everything else reads it.
type Grid struct {
	W, H  int
	Torus bool

	tiles []Tile
}

// NewGrid builds an empty grid. A non-toroidal grid carries a wall border
// on its outer ring, which is what blocks movement at the edge.
func NewGrid(w, h int, torus bool) *Grid {
	g := &Grid{W: w, H: h, Torus: torus, tiles: make([]Tile, w*h)}
	if !torus {
		for x := 0; x < w; x++ {
			g.tiles[x] = Tile{Kind: TileWall}
			g.tiles[(h-1)*w+x] = Tile{Kind: TileWall}
		}
		for y := 0; y < h; y++ {
			g.tiles[y*w] = Tile{Kind: TileWall}
			g.tiles[y*w+w-1] = Tile{Kind: TileWall}
		}
	}
	return g
}

func (g *Grid) idx(x, y int) int { return y*g.W + x }

// At returns the tile at (x, y). Out-of-range coordinates read as wall,
// which only happens on degenerate non-torus grids.
func (g *Grid) At(x, y int) Tile {
	if x < 0 || x >= g.W || y < 0 || y >= g.H {
		return Tile{Kind: TileWall}
	}
	return g.tiles[g.idx(x, y)]
}

// Ahead resolves the coordinate one step from (x, y) in direction d,
// wrapping on a torus.
func (g *Grid) Ahead(x, y int, d Dir) (int, int, bool) {
	nx := x + dirDX[d&3]
	ny := y + dirDY[d&3]
	if g.Torus {
		nx = ((nx % g.W) + g.W) % g.W
		ny = ((ny % g.H) + g.H) % g.H
		return nx, ny, true
	}
	if nx < 0 || nx >= g.W || ny < 0 || ny >= g.H {
		return 0, 0, false
	}
	return nx, ny, true
}

func (g *Grid) setCell(x, y int, id uint64) {
	g.tiles[g.idx(x, y)] = Tile{Kind: TileCell, Cell: id}
}

func (g *Grid) setCorpse(x, y, energy int) {
	g.tiles[g.idx(x, y)] = Tile{Kind: TileCorpse, Energy: energy}
}

func (g *Grid) clear(x, y int) {
	g.tiles[g.idx(x, y)] = Tile{}
}

// countKind returns the number of tiles of the given kind.
func (g *Grid) countKind(k TileKind) int {
	n := 0
	for i := range g.tiles {
		if g.tiles[i].Kind == k {
			n++
		}
	}
	return n
}
