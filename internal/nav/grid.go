package nav

import (
	"container/heap"
	"math"

	"github.com/jakecoffman/cp"
)

type navNeighbor struct {
	col      int
	row      int
	cost     float64
	diagonal bool
}

var navNeighborOffsets = [...]navNeighbor{
	{col: 0, row: -1, cost: 1, diagonal: false},
	{col: 1, row: 0, cost: 1, diagonal: false},
	{col: 0, row: 1, cost: 1, diagonal: false},
	{col: -1, row: 0, cost: 1, diagonal: false},
	{col: 1, row: -1, cost: math.Sqrt2, diagonal: true},
	{col: 1, row: 1, cost: math.Sqrt2, diagonal: true},
	{col: -1, row: 1, cost: math.Sqrt2, diagonal: true},
	{col: -1, row: -1, cost: math.Sqrt2, diagonal: true},
}

// Grid is a uniform walkability grid over the map. Cell size and extent are
// fixed at construction. The obstacle layer is transient: ClearObstacles
// resets every non-edge cell, and callers re-mark agents each tick before any
// path query. Edge-margin cells are permanently unwalkable so no route leaves
// the playable area.
type Grid struct {
	cols, rows int
	cellSize   float64
	width      float64
	height     float64
	margin     float64

	walkable []bool
	edge     []bool

	// Per-search scratch, reset before every A* run.
	gCost  []float64
	hCost  []float64
	parent []int32
	closed []bool

	turnAngle  float64
	minSpacing float64
}

// NewGrid builds the grid for the given map extent using the injected
// tunables.
func NewGrid(cfg Config, width, height float64) *Grid {
	cfg = cfg.Normalized()
	cols := int(math.Ceil(width / cfg.CellSize))
	rows := int(math.Ceil(height / cfg.CellSize))
	if cols <= 0 {
		cols = 1
	}
	if rows <= 0 {
		rows = 1
	}
	size := cols * rows
	g := &Grid{
		cols:       cols,
		rows:       rows,
		cellSize:   cfg.CellSize,
		width:      width,
		height:     height,
		margin:     cfg.EdgeMargin,
		walkable:   make([]bool, size),
		edge:       make([]bool, size),
		gCost:      make([]float64, size),
		hCost:      make([]float64, size),
		parent:     make([]int32, size),
		closed:     make([]bool, size),
		turnAngle:  cfg.SimplifyTurnAngle,
		minSpacing: cfg.SimplifyMinSpacing,
	}
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			center := g.worldPos(col, row)
			if center.X < g.margin || center.X > width-g.margin ||
				center.Y < g.margin || center.Y > height-g.margin {
				g.edge[row*cols+col] = true
			}
		}
	}
	g.ClearObstacles()
	return g
}

// Cols reports the number of grid columns.
func (g *Grid) Cols() int {
	if g == nil {
		return 0
	}
	return g.cols
}

// Rows reports the number of grid rows.
func (g *Grid) Rows() int {
	if g == nil {
		return 0
	}
	return g.rows
}

// CellSize reports the cell edge length in world units.
func (g *Grid) CellSize() float64 {
	if g == nil {
		return 0
	}
	return g.cellSize
}

func (g *Grid) inBounds(col, row int) bool {
	return g != nil && col >= 0 && row >= 0 && col < g.cols && row < g.rows
}

func (g *Grid) index(col, row int) int {
	return row*g.cols + col
}

// IsWalkable reports whether the cell is currently traversable.
func (g *Grid) IsWalkable(col, row int) bool {
	if !g.inBounds(col, row) {
		return false
	}
	return g.walkable[g.index(col, row)]
}

func (g *Grid) worldPos(col, row int) cp.Vector {
	return cp.Vector{
		X: (float64(col) + 0.5) * g.cellSize,
		Y: (float64(row) + 0.5) * g.cellSize,
	}
}

// ClearObstacles resets the transient obstacle layer: every non-edge cell
// becomes walkable and every edge-margin cell is forced back to blocked.
// Must run before re-marking agents each tick so no stale block survives.
func (g *Grid) ClearObstacles() {
	if g == nil {
		return
	}
	for i := range g.walkable {
		g.walkable[i] = !g.edge[i]
	}
}

// SetObstacle marks every cell whose center lies within radius of center as
// walkable=!blocked. Edge cells get flagged like any other cell; the next
// ClearObstacles restores their permanent status.
func (g *Grid) SetObstacle(center cp.Vector, radius float64, blocked bool) {
	if g == nil || radius <= 0 {
		return
	}
	minCol := int(math.Floor((center.X - radius) / g.cellSize))
	maxCol := int(math.Ceil((center.X + radius) / g.cellSize))
	minRow := int(math.Floor((center.Y - radius) / g.cellSize))
	maxRow := int(math.Ceil((center.Y + radius) / g.cellSize))
	for row := minRow; row <= maxRow; row++ {
		for col := minCol; col <= maxCol; col++ {
			if !g.inBounds(col, row) {
				continue
			}
			if g.worldPos(col, row).Distance(center) <= radius {
				g.walkable[g.index(col, row)] = !blocked
			}
		}
	}
}

// ClampToInterior pulls a world point into the walkable interior, leaving the
// permanent edge margin on every side.
func (g *Grid) ClampToInterior(p cp.Vector) cp.Vector {
	if g == nil {
		return p
	}
	return cp.Vector{
		X: clamp(p.X, g.margin, g.width-g.margin),
		Y: clamp(p.Y, g.margin, g.height-g.margin),
	}
}

func (g *Grid) locate(p cp.Vector) (int, int, bool) {
	if g == nil || g.cols == 0 || g.rows == 0 {
		return 0, 0, false
	}
	col := int(p.X / g.cellSize)
	row := int(p.Y / g.cellSize)
	if col >= g.cols {
		col = g.cols - 1
	}
	if row >= g.rows {
		row = g.rows - 1
	}
	if col < 0 {
		col = 0
	}
	if row < 0 {
		row = 0
	}
	if !g.inBounds(col, row) {
		return 0, 0, false
	}
	return col, row, true
}

// Manhattan distance in grid units. Fixed so repeated searches over the same
// grid state produce identical paths.
func (g *Grid) heuristic(a, b int) float64 {
	ac, ar := a%g.cols, a/g.cols
	bc, br := b%g.cols, b/g.cols
	return math.Abs(float64(ac-bc)) + math.Abs(float64(ar-br))
}

type pathNode struct {
	cell  int32
	g     float64
	h     float64
	f     float64
	order int64
	index int
}

type pathQueue []*pathNode

func (pq pathQueue) Len() int { return len(pq) }

// Less orders by f, breaking ties on lower h, then insertion order so the
// search is reproducible.
func (pq pathQueue) Less(i, j int) bool {
	if pq[i].f != pq[j].f {
		return pq[i].f < pq[j].f
	}
	if pq[i].h != pq[j].h {
		return pq[i].h < pq[j].h
	}
	return pq[i].order < pq[j].order
}

func (pq pathQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *pathQueue) Push(x any) {
	n := len(*pq)
	item := x.(*pathNode)
	item.index = n
	*pq = append(*pq, item)
}

func (pq *pathQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[:n-1]
	return item
}

func (g *Grid) resetSearch() {
	for i := range g.gCost {
		g.gCost[i] = math.Inf(1)
		g.parent[i] = -1
		g.closed[i] = false
	}
}

func (g *Grid) canTraverseDiagonal(cell int, delta navNeighbor) bool {
	if !delta.diagonal {
		return true
	}
	col, row := cell%g.cols, cell/g.cols
	if !g.IsWalkable(col+delta.col, row) {
		return false
	}
	return g.IsWalkable(col, row+delta.row)
}

func (g *Grid) astar(start, goal int) ([]int, bool) {
	g.resetSearch()
	open := &pathQueue{}
	heap.Init(open)
	var order int64
	g.gCost[start] = 0
	heap.Push(open, &pathNode{cell: int32(start), g: 0, h: g.heuristic(start, goal), f: g.heuristic(start, goal)})

	for open.Len() > 0 {
		current := heap.Pop(open).(*pathNode)
		cell := int(current.cell)
		if g.closed[cell] {
			continue
		}
		g.closed[cell] = true
		if cell == goal {
			return g.reconstruct(cell), true
		}
		col, row := cell%g.cols, cell/g.cols
		for _, delta := range navNeighborOffsets {
			nc := col + delta.col
			nr := row + delta.row
			if !g.inBounds(nc, nr) {
				continue
			}
			idx := g.index(nc, nr)
			if !g.walkable[idx] || g.closed[idx] {
				continue
			}
			if !g.canTraverseDiagonal(cell, delta) {
				continue
			}
			tentative := g.gCost[cell] + delta.cost
			if tentative >= g.gCost[idx] {
				continue
			}
			g.gCost[idx] = tentative
			g.parent[idx] = int32(cell)
			h := g.heuristic(idx, goal)
			g.hCost[idx] = h
			order++
			heap.Push(open, &pathNode{cell: int32(idx), g: tentative, h: h, f: tentative + h, order: order})
		}
	}
	return nil, false
}

func (g *Grid) reconstruct(end int) []int {
	cells := make([]int, 0, 16)
	for cell := end; cell >= 0; cell = int(g.parent[cell]) {
		cells = append(cells, cell)
	}
	for i, j := 0, len(cells)-1; i < j; i, j = i+1, j-1 {
		cells[i], cells[j] = cells[j], cells[i]
	}
	return cells
}

// FindPath routes between two world points. Both endpoints are clamped into
// the walkable interior first. When either endpoint lands on an unwalkable
// cell, or the search exhausts the open set, the result degrades to the goal
// alone so callers can steer directly at it. Never empty, never an error.
func (g *Grid) FindPath(start, goal cp.Vector) []cp.Vector {
	if g == nil {
		return []cp.Vector{goal}
	}
	start = g.ClampToInterior(start)
	goal = g.ClampToInterior(goal)
	direct := []cp.Vector{goal}

	startCol, startRow, ok := g.locate(start)
	if !ok || !g.IsWalkable(startCol, startRow) {
		return direct
	}
	goalCol, goalRow, ok := g.locate(goal)
	if !ok || !g.IsWalkable(goalCol, goalRow) {
		return direct
	}

	startIdx := g.index(startCol, startRow)
	goalIdx := g.index(goalCol, goalRow)
	if startIdx == goalIdx {
		return []cp.Vector{start, goal}
	}

	cells, ok := g.astar(startIdx, goalIdx)
	if !ok || len(cells) == 0 {
		return direct
	}
	return g.simplify(start, goal, cells)
}

// simplify keeps the literal start and goal and drops interior nodes that do
// not bend the route. An interior node survives when the turn angle exceeds
// the threshold and it sits far enough from the last kept waypoint, or
// unconditionally once it drifts past twice the minimum spacing.
func (g *Grid) simplify(start, goal cp.Vector, cells []int) []cp.Vector {
	path := make([]cp.Vector, 0, len(cells)+2)
	path = append(path, start)
	lastKept := start
	for i := 1; i < len(cells)-1; i++ {
		node := g.worldPos(cells[i]%g.cols, cells[i]/g.cols)
		next := goal
		if i+1 < len(cells)-1 {
			next = g.worldPos(cells[i+1]%g.cols, cells[i+1]/g.cols)
		}
		incoming := node.Sub(lastKept)
		outgoing := next.Sub(node)
		if incoming.Length() < 1e-9 || outgoing.Length() < 1e-9 {
			continue
		}
		spacing := node.Distance(lastKept)
		if spacing > 2*g.minSpacing {
			path = append(path, node)
			lastKept = node
			continue
		}
		turn := math.Acos(clamp(incoming.Normalize().Dot(outgoing.Normalize()), -1, 1))
		if turn > g.turnAngle && spacing > g.minSpacing {
			path = append(path, node)
			lastKept = node
		}
	}
	path = append(path, goal)
	return path
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
