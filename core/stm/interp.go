package stm

import "fmt"

// interpret runs program n against l and returns its result. It returns
// errRetry when the program retried and any other error when it aborted.
//
// Bind chains are unwound onto an explicit continuation stack so that long
// sequences do not grow the goroutine stack; only OrElse, HandleError and
// Guard recurse, once per nesting level.
func interpret(n node, l *txnLog) (any, error) {
	var conts []func(any) node
	for {
		var (
			v   any
			err error
		)
		switch t := n.(type) {
		case *bindNode:
			conts = append(conts, t.f)
			n = t.src
			continue
		case *pureNode:
			v = t.value
		case *allocNode:
			v = t.alloc()
		case *getNode:
			v = l.read(t.c)
		case *setNode:
			l.recordWrite(t.c, t.value)
			v = Unit{}
		case *modifyNode:
			l.modify(t.c, t.f)
			v = Unit{}
		case *retryNode:
			return nil, errRetry
		case *abortNode:
			return nil, t.err
		case *checkNode:
			var ok any
			if ok, err = interpret(t.pred, l); err != nil {
				return nil, err
			}
			if !ok.(bool) {
				return nil, errRetry
			}
			v = Unit{}
		case *orElseNode:
			var child *txnLog
			child, v, err = interpretFork(t.primary, l)
			switch {
			case err == nil:
				l.adopt(child)
			case err == errRetry:
				l.mergeReads(child)
				n = t.fallback
				continue
			default:
				return nil, err
			}
		case *handleErrorNode:
			var child *txnLog
			child, v, err = interpretFork(t.src, l)
			switch {
			case err == nil:
				l.adopt(child)
			case err == errRetry:
				l.mergeReads(child)
				return nil, errRetry
			default:
				l.mergeReads(child)
				n = t.f(err)
				continue
			}
		case nil:
			panic("stm: zero Txn value")
		default:
			panic(fmt.Sprintf("stm: unknown program node %T", n))
		}

		if len(conts) == 0 {
			return v, nil
		}
		f := conts[len(conts)-1]
		conts = conts[:len(conts)-1]
		n = f(v)
	}
}

// interpretFork runs n against a fork of parent. If n panics, the fork's reads
// are merged into parent first so that the commit loop can tell whether the
// panic came from an inconsistent snapshot.
func interpretFork(n node, parent *txnLog) (child *txnLog, v any, err error) {
	child = parent.fork()
	defer func() {
		if r := recover(); r != nil {
			parent.mergeReads(child)
			panic(r)
		}
	}()
	v, err = interpret(n, child)
	return child, v, err
}
