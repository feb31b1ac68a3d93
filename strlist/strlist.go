// Package strlist provides a small singly-linked list of strings, used
// by higher layers to carry recipient, signer and option lists. Values are held as byte slices so secret-bearing lists can
// be wiped before release.
package strlist

import (
	"errors"
	"strings"
)

// ErrNoTokens is returned by Tokenize when the input contains no
// non-empty tokens after trimming.
var ErrNoTokens = errors.New("strlist: no tokens")

// Node is one list element. The zero flags value carries no meaning for
// this package; callers use Flags for their own bookkeeping.
type Node struct {
	next  *Node
	Flags uint
	val   []byte
}

// Next returns the following element, or nil at the end of the list.
func (n *Node) Next() *Node {
	if n == nil {
		return nil
	}
	return n.next
}

// Value returns the element's payload.
func (n *Node) Value() string {
	if n == nil {
		return ""
	}
	return string(n.val)
}

// Prepend puts s at the front of list and returns the new head.
func Prepend(list *Node, s string) *Node {
	return &Node{next: list, val: []byte(s)}
}

// Append puts s at the end of list and returns the head.
func Append(list *Node, s string) *Node {
	n := &Node{val: []byte(s)}
	if list == nil {
		return n
	}
	last := list
	for last.next != nil {
		last = last.next
	}
	last.next = n
	return list
}

// Tokenize splits s at any of the delimiter bytes in delims, trims each
// token of leading and trailing whitespace, and drops empty tokens. An
// input with no tokens left yields (nil, ErrNoTokens).
func Tokenize(s, delims string) (*Node, error) {
	var head *Node
	for _, tok := range strings.FieldsFunc(s, func(r rune) bool {
		return strings.ContainsRune(delims, r)
	}) {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		head = Append(head, tok)
	}
	if head == nil {
		return nil, ErrNoTokens
	}
	return head, nil
}

// Copy returns a deep copy of list.
func Copy(list *Node) *Node {
	var head, tail *Node
	for n := list; n != nil; n = n.next {
		c := &Node{Flags: n.Flags, val: append([]byte(nil), n.val...)}
		if head == nil {
			head = c
		} else {
			tail.next = c
		}
		tail = c
	}
	return head
}

// Reverse reverses list in place and returns the new head.
func Reverse(list *Node) *Node {
	var prev *Node
	for n := list; n != nil; {
		next := n.next
		n.next = prev
		prev = n
		n = next
	}
	return prev
}

// Pop detaches and returns the value of the first element, updating *list
// to the remainder. ok is false on an empty list.
func Pop(list **Node) (s string, ok bool) {
	n := *list
	if n == nil {
		return "", false
	}
	*list = n.next
	n.next = nil
	return string(n.val), true
}

// Find returns the first element whose value equals s, or nil.
func Find(list *Node, s string) *Node {
	for n := list; n != nil; n = n.next {
		if string(n.val) == s {
			return n
		}
	}
	return nil
}

// Length returns the number of elements in list.
func Length(list *Node) int {
	count := 0
	for n := list; n != nil; n = n.next {
		count++
	}
	return count
}

// Wipe zeroes every element's payload bytes before the list is dropped,
// for lists that carried secret material. The nodes stay linked, and every
// element's value is empty afterwards.
func Wipe(list *Node) {
	for n := list; n != nil; n = n.next {
		for i := range n.val {
			n.val[i] = 0
		}
		n.val = n.val[:0]
	}
}
