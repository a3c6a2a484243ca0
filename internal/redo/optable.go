package redo

import "container/list"

// opTable maps transaction ids to operations and remembers insertion order.
// Replacing an existing key keeps its original position.
type opTable struct {
	order *list.List
	index map[TransactionID]*list.Element
}

type opEntry struct {
	id TransactionID
	op Operation
}

func newOpTable() *opTable {
	return &opTable{
		order: list.New(),
		index: make(map[TransactionID]*list.Element),
	}
}

// put returns true if id was already present.
func (t *opTable) put(id TransactionID, op Operation) bool {
	if e, ok := t.index[id]; ok {
		e.Value.(*opEntry).op = op
		return true
	}
	t.index[id] = t.order.PushBack(&opEntry{id: id, op: op})
	return false
}

func (t *opTable) get(id TransactionID) (Operation, bool) {
	e, ok := t.index[id]
	if !ok {
		return nil, false
	}
	return e.Value.(*opEntry).op, true
}

func (t *opTable) remove(id TransactionID) (Operation, bool) {
	e, ok := t.index[id]
	if !ok {
		return nil, false
	}
	delete(t.index, id)
	t.order.Remove(e)
	return e.Value.(*opEntry).op, true
}

func (t *opTable) len() int {
	return len(t.index)
}

func (t *opTable) keys() []TransactionID {
	ids := make([]TransactionID, 0, len(t.index))
	for e := t.order.Front(); e != nil; e = e.Next() {
		ids = append(ids, e.Value.(*opEntry).id)
	}
	return ids
}

func (t *opTable) ops() []Operation {
	ops := make([]Operation, 0, len(t.index))
	for e := t.order.Front(); e != nil; e = e.Next() {
		ops = append(ops, e.Value.(*opEntry).op)
	}
	return ops
}

func (t *opTable) clear() {
	t.order.Init()
	t.index = make(map[TransactionID]*list.Element)
}
