package cursor

import "testing"

func TestNavigateFromAbortsOnTraversalCycle(t *testing.T) {
	start := &fakeNode{id: "start", focusable: true}
	a := &fakeNode{id: "a"}
	b := &fakeNode{id: "b"}
	searches := 0
	tree := &fakeTree{
		root:    start,
		focused: start,
		search: func(from Node, _ Direction) Node {
			searches++
			if searches > 10 {
				t.Fatalf("expected the search to stop at the first repeated node")
			}
			switch from.ID() {
			case "start", "b":
				return a
			case "a":
				return b
			}
			return nil
		},
	}

	controller := NewController(tree)
	if controller.Next(false, false) {
		t.Fatalf("expected navigation through a cycle of unfocusable nodes to fail")
	}
	if searches != 3 {
		t.Fatalf("expected 3 searches before the cycle was detected, got %d", searches)
	}
}

func TestControllerWithoutTreeReportsDeadEnds(t *testing.T) {
	controller := NewController(&fakeTree{})

	if controller.Next(true, true) || controller.Previous(true, true) {
		t.Fatalf("expected navigation without a root to fail")
	}
	if controller.More() || controller.Less() {
		t.Fatalf("expected scrolling without a root to fail")
	}
	if controller.SetGranularity(GranularityWord, true) {
		t.Fatalf("expected granularity change without a root to fail")
	}
	if got := controller.NavigateWithin(DirectionForward); got != ResultNotSupported {
		t.Fatalf("expected not supported, got %v", got)
	}

	var nilController *Controller
	if nilController.Next(true, true) || nilController.Cursor() != nil {
		t.Fatalf("expected nil controller to be inert")
	}
}

func TestFromMaskOrdersGranularities(t *testing.T) {
	mask := GranularityPage.Mask() | GranularityCharacter.Mask()
	got := FromMask(mask, true)
	expected := []Granularity{
		GranularityDefault,
		GranularityCharacter,
		GranularityPage,
		GranularityWebSection,
		GranularityWebList,
		GranularityWebControl,
	}
	if len(got) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Fatalf("expected %v, got %v", expected, got)
		}
	}
}

func TestNextBestPrefersCoarserGranularity(t *testing.T) {
	supported := []Granularity{GranularityDefault, GranularityCharacter, GranularityParagraph}

	testCases := []struct {
		requested Granularity
		expected  Granularity
	}{
		{GranularityCharacter, GranularityCharacter},
		{GranularityWord, GranularityParagraph},
		{GranularityPage, GranularityParagraph},
		{GranularityWebList, GranularityDefault},
	}

	for _, tc := range testCases {
		t.Run(tc.requested.String(), func(t *testing.T) {
			if got := NextBest(tc.requested, supported); got != tc.expected {
				t.Fatalf("expected %v, got %v", tc.expected, got)
			}
		})
	}
}
