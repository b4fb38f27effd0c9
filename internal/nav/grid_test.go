package nav

import (
	"testing"

	"github.com/jakecoffman/cp"
)

func testGrid(t *testing.T, width, height float64) *Grid {
	t.Helper()
	return NewGrid(DefaultConfig(), width, height)
}

func TestFindPathOpenMap(t *testing.T) {
	grid := testGrid(t, 8192, 8192)
	start := cp.Vector{X: 100, Y: 100}
	goal := cp.Vector{X: 8000, Y: 8000}

	path := grid.FindPath(start, goal)
	if len(path) < 2 {
		t.Fatalf("expected at least start and goal, got %d waypoints", len(path))
	}
	wantStart := grid.ClampToInterior(start)
	if path[0] != wantStart {
		t.Fatalf("first waypoint %+v, want clamped start %+v", path[0], wantStart)
	}
	if last := path[len(path)-1]; last != goal {
		t.Fatalf("last waypoint %+v, want goal %+v", last, goal)
	}
	for i, wp := range path {
		if wp.X < 128 || wp.X > 8192-128 || wp.Y < 128 || wp.Y > 8192-128 {
			t.Fatalf("waypoint %d (%+v) inside the edge margin", i, wp)
		}
	}
}

func TestFindPathDeterministic(t *testing.T) {
	grid := testGrid(t, 8192, 8192)
	grid.SetObstacle(cp.Vector{X: 3000, Y: 3000}, 600, true)
	grid.SetObstacle(cp.Vector{X: 5000, Y: 4200}, 900, true)

	start := cp.Vector{X: 400, Y: 400}
	goal := cp.Vector{X: 7600, Y: 7600}

	first := grid.FindPath(start, goal)
	for run := 0; run < 5; run++ {
		again := grid.FindPath(start, goal)
		if len(again) != len(first) {
			t.Fatalf("run %d: length %d, want %d", run, len(again), len(first))
		}
		for i := range again {
			if again[i] != first[i] {
				t.Fatalf("run %d: waypoint %d = %+v, want %+v", run, i, again[i], first[i])
			}
		}
	}
}

func TestFindPathDetoursAroundObstacle(t *testing.T) {
	grid := testGrid(t, 8192, 8192)
	center := cp.Vector{X: 4096, Y: 4096}
	grid.SetObstacle(center, 1000, true)

	start := cp.Vector{X: 3000, Y: 4096}
	goal := cp.Vector{X: 5200, Y: 4096}
	path := grid.FindPath(start, goal)
	if len(path) < 2 {
		t.Fatalf("expected a routed path, got %v", path)
	}

	for i, wp := range path {
		if wp.Distance(center) < 1000 {
			t.Fatalf("waypoint %d (%+v) inside the blocked radius", i, wp)
		}
	}
	// Sample the segments too; simplification may chord slightly across the
	// arc but must never cut through the obstacle.
	prev := path[0]
	for _, wp := range path[1:] {
		seg := wp.Sub(prev)
		for step := 0; step <= 16; step++ {
			p := prev.Add(seg.Mult(float64(step) / 16))
			if p.Distance(center) < 900 {
				t.Fatalf("segment point %+v cuts through the obstacle", p)
			}
		}
		prev = wp
	}
}

func TestFindPathBlockedGoalFallsBackToDirect(t *testing.T) {
	grid := testGrid(t, 8192, 8192)
	goal := cp.Vector{X: 4096, Y: 4096}
	grid.SetObstacle(goal, 300, true)

	path := grid.FindPath(cp.Vector{X: 1000, Y: 1000}, goal)
	if len(path) != 1 || path[0] != goal {
		t.Fatalf("expected direct fallback [goal], got %v", path)
	}
}

func TestFindPathEnclosedGoalFallsBackToDirect(t *testing.T) {
	grid := testGrid(t, 8192, 8192)
	center := cp.Vector{X: 4096, Y: 4096}
	// Blocked blob with a walkable island at its center: the search runs and
	// exhausts the open set.
	grid.SetObstacle(center, 1200, true)
	grid.SetObstacle(center, 300, false)

	path := grid.FindPath(cp.Vector{X: 1000, Y: 1000}, center)
	if len(path) != 1 || path[0] != center {
		t.Fatalf("expected direct fallback [goal], got %v", path)
	}
}

func TestFindPathSameCell(t *testing.T) {
	grid := testGrid(t, 8192, 8192)
	start := cp.Vector{X: 1000, Y: 1000}
	goal := cp.Vector{X: 1010, Y: 1015}
	path := grid.FindPath(start, goal)
	if len(path) != 2 || path[0] != start || path[1] != goal {
		t.Fatalf("expected [start goal], got %v", path)
	}
}

func TestClearObstaclesRestoresEdgeMargin(t *testing.T) {
	grid := testGrid(t, 8192, 8192)

	// Force edge cells walkable and interior cells blocked, then clear.
	grid.SetObstacle(cp.Vector{X: 64, Y: 64}, 200, false)
	grid.SetObstacle(cp.Vector{X: 4096, Y: 4096}, 500, true)
	grid.ClearObstacles()

	if grid.IsWalkable(0, 0) {
		t.Fatalf("edge cell walkable after ClearObstacles")
	}
	if !grid.IsWalkable(32, 32) {
		t.Fatalf("interior cell blocked after ClearObstacles")
	}
}

func TestSetObstacleMarksCellCentersOnly(t *testing.T) {
	grid := testGrid(t, 8192, 8192)
	center := cp.Vector{X: 4096, Y: 4096}
	grid.SetObstacle(center, 200, true)

	for row := 0; row < grid.Rows(); row++ {
		for col := 0; col < grid.Cols(); col++ {
			cellCenter := grid.worldPos(col, row)
			inRadius := cellCenter.Distance(center) <= 200
			if inRadius && grid.IsWalkable(col, row) {
				t.Fatalf("cell (%d,%d) inside radius still walkable", col, row)
			}
			if !inRadius && !grid.edge[grid.index(col, row)] && !grid.IsWalkable(col, row) {
				t.Fatalf("cell (%d,%d) outside radius blocked", col, row)
			}
		}
	}
}

func TestFindPathClampsOutOfBoundsEndpoints(t *testing.T) {
	grid := testGrid(t, 8192, 8192)

	path := grid.FindPath(cp.Vector{X: -500, Y: 300}, cp.Vector{X: 4000, Y: 4000})
	if len(path) < 2 {
		t.Fatalf("expected a clamped route, got %v", path)
	}
	if first := path[0]; first.X != 128 || first.Y != 300 {
		t.Fatalf("start not clamped into interior: %+v", first)
	}

	// A goal clamped onto the margin line lands in an edge cell and degrades
	// to the direct fallback.
	path = grid.FindPath(cp.Vector{X: 4000, Y: 4000}, cp.Vector{X: 9000, Y: 9000})
	if len(path) != 1 {
		t.Fatalf("expected direct fallback, got %v", path)
	}
	if path[0].X != 8064 || path[0].Y != 8064 {
		t.Fatalf("fallback goal not clamped: %+v", path[0])
	}
}
