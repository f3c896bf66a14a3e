package core

import "testing"

func TestOraclePolicyDefers(t *testing.T) {
	var p OraclePolicy
	coord, ok := p.Refine(RouteCoord{X: 1, Y: 1}, []CoordSample{{Coord: RouteCoord{X: 5, Y: 5}, Dist: 3}})
	if ok {
		t.Fatalf("oracle policy should never compute its own coordinate")
	}
	if coord.X != 1 || coord.Y != 1 {
		t.Fatalf("oracle policy should pass through current coordinate unchanged")
	}
}

func TestMDSPolicyConverges(t *testing.T) {
	p := NewMDSPolicy()
	target := RouteCoord{X: 100, Y: 0}
	anchors := []RouteCoord{{X: 0, Y: 0}, {X: 0, Y: 100}, {X: 200, Y: 0}}

	cur := RouteCoord{}
	for i := 0; i < 200; i++ {
		var samples []CoordSample
		for _, a := range anchors {
			samples = append(samples, CoordSample{Coord: a, Dist: a.Dist(target)})
		}
		next, ok := p.Refine(cur, samples)
		if !ok {
			t.Fatalf("mds policy should always produce a coordinate given samples")
		}
		cur = next
	}
	if d := cur.Dist(target); d > 2 {
		t.Fatalf("expected convergence close to %v, got %v (dist %v)", target, cur, d)
	}
}

func TestGreedyForward(t *testing.T) {
	dest := RouteCoord{X: 100, Y: 0}
	far := &NodeID{Data: make([]byte, 32)}
	near := &NodeID{Data: make([]byte, 32)}
	far.Data[0] = 1
	near.Data[0] = 2
	far.Init()
	near.Init()
	candidates := []ForwardCandidate{
		{ID: far, Coord: RouteCoord{X: 10, Y: 0}},
		{ID: near, Coord: RouteCoord{X: 90, Y: 0}},
	}
	next, ok := GreedyForward(dest, candidates)
	if !ok {
		t.Fatalf("expected a forwarding candidate")
	}
	if !next.ID.Equal(near) {
		t.Fatalf("expected the closer candidate to be chosen")
	}
}

func TestGreedyForwardLocalMinimum(t *testing.T) {
	dest := RouteCoord{X: 100, Y: 0}
	candidates := []ForwardCandidate{}
	if _, ok := GreedyForward(dest, candidates); ok {
		t.Fatalf("expected local minimum (no candidates)")
	}
}
