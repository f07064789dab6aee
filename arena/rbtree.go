package arena

// rbtree.go implements the segment index's ordering structure: an intrusive
// red-black tree over *BTag, keyed by start address, with SPAN tags sorted
// strictly before any non-SPAN tag that shares the same start. This plays
// the role that <rbtree.h>'s struct rb_node plays in the original arena.c;
// the red-black tree primitives themselves are treated as an external
// collaborator there, but no third-party Go module in the retrieved corpus
// supplies an intrusive ordered-tree type, so it is implemented here,
// grounded on the exact insert/erase/prev/next contract arena.h documents.
//
// This is a standard parent-pointer red-black tree (no sentinel node); the
// algorithms mirror the Linux kernel's lib/rbtree.c, which is what the
// original arena.c links against.

// segIndex is the arena's all_segs tree: an ordered index of every
// non-overlapping segment (FREE, ALLOC, or SPAN) the arena currently
// tracks.
type segIndex struct {
	root *BTag
}

func less(a, b *BTag) bool {
	if a.start != b.start {
		return a.start < b.start
	}
	// Tie-break: a SPAN sorts before a co-starting regular tag. Two
	// regular tags can never legitimately share a start (that would mean
	// the same address is covered twice), and two SPANs can't share a
	// start either, so this only needs to order a new SPAN ahead of an
	// existing regular tag (or vice versa).
	return a.status == Span && b.status != Span
}

// insert adds bt to the tree. Callers must ensure bt's key (start, and span
// polarity) doesn't collide with an existing non-span tag at the same
// start; that would mean the arena's "every address covered exactly once"
// invariant is already broken.
func (idx *segIndex) insert(bt *BTag) {
	var parent *BTag
	cur := idx.root
	goLeft := false
	for cur != nil {
		parent = cur
		if less(bt, cur) {
			cur = cur.rbLeft
			goLeft = true
		} else if less(cur, bt) {
			cur = cur.rbRight
			goLeft = false
		} else {
			// Equal key and equal polarity: only acceptable if one side
			// is a SPAN and the other isn't, which `less` already
			// resolved above. Getting here means a true duplicate.
			panic("arena: duplicate boundary tag in segment index")
		}
	}
	bt.rbLeft, bt.rbRight, bt.rbParent = nil, nil, parent
	bt.rbRed = true
	if parent == nil {
		idx.root = bt
	} else if goLeft {
		parent.rbLeft = bt
	} else {
		parent.rbRight = bt
	}
	idx.insertFixup(bt)
}

func (idx *segIndex) rotateLeft(x *BTag) {
	y := x.rbRight
	x.rbRight = y.rbLeft
	if y.rbLeft != nil {
		y.rbLeft.rbParent = x
	}
	y.rbParent = x.rbParent
	if x.rbParent == nil {
		idx.root = y
	} else if x == x.rbParent.rbLeft {
		x.rbParent.rbLeft = y
	} else {
		x.rbParent.rbRight = y
	}
	y.rbLeft = x
	x.rbParent = y
}

func (idx *segIndex) rotateRight(x *BTag) {
	y := x.rbLeft
	x.rbLeft = y.rbRight
	if y.rbRight != nil {
		y.rbRight.rbParent = x
	}
	y.rbParent = x.rbParent
	if x.rbParent == nil {
		idx.root = y
	} else if x == x.rbParent.rbRight {
		x.rbParent.rbRight = y
	} else {
		x.rbParent.rbLeft = y
	}
	y.rbRight = x
	x.rbParent = y
}

func (idx *segIndex) insertFixup(z *BTag) {
	for z.rbParent != nil && z.rbParent.rbRed {
		parent := z.rbParent
		grand := parent.rbParent
		if grand == nil {
			break
		}
		if parent == grand.rbLeft {
			uncle := grand.rbRight
			if uncle != nil && uncle.rbRed {
				parent.rbRed = false
				uncle.rbRed = false
				grand.rbRed = true
				z = grand
				continue
			}
			if z == parent.rbRight {
				z = parent
				idx.rotateLeft(z)
				parent = z.rbParent
			}
			parent.rbRed = false
			grand.rbRed = true
			idx.rotateRight(grand)
		} else {
			uncle := grand.rbLeft
			if uncle != nil && uncle.rbRed {
				parent.rbRed = false
				uncle.rbRed = false
				grand.rbRed = true
				z = grand
				continue
			}
			if z == parent.rbLeft {
				z = parent
				idx.rotateRight(z)
				parent = z.rbParent
			}
			parent.rbRed = false
			grand.rbRed = true
			idx.rotateLeft(grand)
		}
	}
	idx.root.rbRed = false
}

func isRed(bt *BTag) bool { return bt != nil && bt.rbRed }

// erase removes bt from the tree. bt must already be in this tree.
func (idx *segIndex) erase(z *BTag) {
	y := z
	yWasRed := isRed(y)
	var x, xParent *BTag

	if z.rbLeft == nil {
		x = z.rbRight
		xParent = z.rbParent
		idx.transplant(z, z.rbRight)
	} else if z.rbRight == nil {
		x = z.rbLeft
		xParent = z.rbParent
		idx.transplant(z, z.rbLeft)
	} else {
		y = treeMin(z.rbRight)
		yWasRed = isRed(y)
		x = y.rbRight
		if y.rbParent == z {
			xParent = y
		} else {
			xParent = y.rbParent
			idx.transplant(y, y.rbRight)
			y.rbRight = z.rbRight
			y.rbRight.rbParent = y
		}
		idx.transplant(z, y)
		y.rbLeft = z.rbLeft
		y.rbLeft.rbParent = y
		y.rbRed = z.rbRed
	}
	z.rbLeft, z.rbRight, z.rbParent = nil, nil, nil
	if !yWasRed {
		idx.eraseFixup(x, xParent)
	}
}

func (idx *segIndex) transplant(u, v *BTag) {
	if u.rbParent == nil {
		idx.root = v
	} else if u == u.rbParent.rbLeft {
		u.rbParent.rbLeft = v
	} else {
		u.rbParent.rbRight = v
	}
	if v != nil {
		v.rbParent = u.rbParent
	}
}

func treeMin(bt *BTag) *BTag {
	for bt.rbLeft != nil {
		bt = bt.rbLeft
	}
	return bt
}

func treeMax(bt *BTag) *BTag {
	for bt.rbRight != nil {
		bt = bt.rbRight
	}
	return bt
}

// eraseFixup restores the red-black properties after erase. x may be nil
// (the node that replaced the erased one was a nil child), so we track its
// would-be parent explicitly.
func (idx *segIndex) eraseFixup(x, parent *BTag) {
	for x != idx.root && !isRed(x) {
		if parent == nil {
			break
		}
		if x == parent.rbLeft {
			sib := parent.rbRight
			if isRed(sib) {
				sib.rbRed = false
				parent.rbRed = true
				idx.rotateLeft(parent)
				sib = parent.rbRight
			}
			if !isRed(sib.rbLeft) && !isRed(sib.rbRight) {
				sib.rbRed = true
				x = parent
				parent = x.rbParent
				continue
			}
			if !isRed(sib.rbRight) {
				sib.rbLeft.rbRed = false
				sib.rbRed = true
				idx.rotateRight(sib)
				sib = parent.rbRight
			}
			sib.rbRed = parent.rbRed
			parent.rbRed = false
			sib.rbRight.rbRed = false
			idx.rotateLeft(parent)
			x = idx.root
			break
		}
		sib := parent.rbLeft
		if isRed(sib) {
			sib.rbRed = false
			parent.rbRed = true
			idx.rotateRight(parent)
			sib = parent.rbLeft
		}
		if !isRed(sib.rbLeft) && !isRed(sib.rbRight) {
			sib.rbRed = true
			x = parent
			parent = x.rbParent
			continue
		}
		if !isRed(sib.rbLeft) {
			sib.rbRight.rbRed = false
			sib.rbRed = true
			idx.rotateLeft(sib)
			sib = parent.rbLeft
		}
		sib.rbRed = parent.rbRed
		parent.rbRed = false
		sib.rbLeft.rbRed = false
		idx.rotateRight(parent)
		x = idx.root
		break
	}
	if x != nil {
		x.rbRed = false
	}
}

// first returns the leftmost (lowest start, SPAN-first) tag in the index.
func (idx *segIndex) first() *BTag {
	if idx.root == nil {
		return nil
	}
	return treeMin(idx.root)
}

// next returns the in-order successor of bt, or nil if bt is the last tag.
func next(bt *BTag) *BTag {
	if bt.rbRight != nil {
		return treeMin(bt.rbRight)
	}
	child, parent := bt, bt.rbParent
	for parent != nil && child == parent.rbRight {
		child = parent
		parent = parent.rbParent
	}
	return parent
}

// prev returns the in-order predecessor of bt, or nil if bt is the first
// tag.
func prev(bt *BTag) *BTag {
	if bt.rbLeft != nil {
		return treeMax(bt.rbLeft)
	}
	child, parent := bt, bt.rbParent
	for parent != nil && child == parent.rbLeft {
		child = parent
		parent = parent.rbParent
	}
	return parent
}
