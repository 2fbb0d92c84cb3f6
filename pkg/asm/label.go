// Package asm defines the instruction model consumed by the verifier:
// labels, instruction variants, branch conditions and a small text assembler.
package asm

import (
	"math"
	"strconv"
	"strings"
)

// MaxCallStackFrames bounds the depth of inlined local calls.
const MaxCallStackFrames = 8

// FrameDelimiter separates call-site segments in the textual frame prefix.
const FrameDelimiter = "/"

// FramePath is the ordered list of call-site indices that distinguishes
// inlined copies of a macro body. It is a comparable value.
type FramePath struct {
	depth uint8
	sites [MaxCallStackFrames]int32
}

// Len returns the number of frames.
func (p FramePath) Len() int { return int(p.depth) }

// At returns the i-th call-site index, outermost first.
func (p FramePath) At(i int) int { return int(p.sites[i]) }

// Push returns a copy of p with site appended. ok is false when the path is full.
func (p FramePath) Push(site int) (FramePath, bool) {
	if int(p.depth) >= MaxCallStackFrames {
		return p, false
	}
	p.sites[p.depth] = int32(site)
	p.depth++
	return p, true
}

// Contains reports whether site is already one of the frames.
func (p FramePath) Contains(site int) bool {
	for i := 0; i < int(p.depth); i++ {
		if int(p.sites[i]) == site {
			return true
		}
	}
	return false
}

// Prefix renders the path as used in frame-scoped variable names, e.g. "3/12".
func (p FramePath) Prefix() string {
	parts := make([]string, p.depth)
	for i := range parts {
		parts[i] = strconv.Itoa(int(p.sites[i]))
	}
	return strings.Join(parts, FrameDelimiter)
}

func (p FramePath) compare(q FramePath) int {
	n := min(p.depth, q.depth)
	for i := uint8(0); i < n; i++ {
		if p.sites[i] != q.sites[i] {
			if p.sites[i] < q.sites[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case p.depth < q.depth:
		return -1
	case p.depth > q.depth:
		return 1
	}
	return 0
}

// Label identifies a basic block.
//
// From is the originating instruction index, To is -1 for plain instruction
// labels and the destination index for synthetic edge-from-branch labels.
// Frames disambiguates clones of an inlined macro body per call site.
// ToFrames is the frame of the destination of a synthetic label; it differs
// from Frames only on edges that return from an inlined macro.
type Label struct {
	From     int
	To       int
	Frames   FramePath
	ToFrames FramePath
}

var (
	// EntryLabel is the distinguished entry label.
	EntryLabel = Label{From: -1, To: -1}
	// ExitLabel is the distinguished exit label.
	ExitLabel = Label{From: math.MaxInt32, To: -1}
)

// At returns the plain label of instruction index i.
func At(i int) Label { return Label{From: i, To: -1} }

// JumpLabel returns the synthetic label of the edge from src to dst. It
// lives in the frame of src and records the frame of dst, so the edge out of
// an inlined branch into its caller never shares a label with a branch of
// the caller itself.
func JumpLabel(src, dst Label) Label {
	return Label{From: src.From, To: dst.From, Frames: src.Frames, ToFrames: dst.Frames}
}

// WithFrames returns l moved into the given frame path.
func (l Label) WithFrames(frames FramePath) Label {
	l.Frames = frames
	if l.IsJump() {
		l.ToFrames = frames
	}
	return l
}

// IsJump reports whether l is a synthetic edge-from-branch label.
func (l Label) IsJump() bool { return l.To != -1 }

// Compare orders labels by frame path, then origin, then destination.
func (l Label) Compare(o Label) int {
	if c := l.Frames.compare(o.Frames); c != 0 {
		return c
	}
	switch {
	case l.From < o.From:
		return -1
	case l.From > o.From:
		return 1
	case l.To < o.To:
		return -1
	case l.To > o.To:
		return 1
	}
	return l.ToFrames.compare(o.ToFrames)
}

func (l Label) String() string {
	switch l {
	case EntryLabel:
		return "entry"
	case ExitLabel:
		return "exit"
	}
	var sb strings.Builder
	if l.Frames.Len() > 0 {
		sb.WriteString(l.Frames.Prefix())
		sb.WriteString(FrameDelimiter)
	}
	sb.WriteString(strconv.Itoa(l.From))
	if l.IsJump() {
		sb.WriteString(":")
		if l.ToFrames != l.Frames {
			// A destination in another frame is always written with its
			// full path; the empty root prefix leaves a leading delimiter.
			sb.WriteString(l.ToFrames.Prefix())
			sb.WriteString(FrameDelimiter)
		}
		sb.WriteString(strconv.Itoa(l.To))
	}
	return sb.String()
}
