// Package stm provides software transactional memory for Go.
//
// State that is shared between goroutines lives in transactional variables
// (TVar). A TVar is never read or written directly; instead callers build a
// transaction program (Txn) out of TVar.Get, TVar.Set, TVar.Modify and the
// combinators in this package, and hand the finished program to Commit:
//
//	rt := stm.MustNewRuntime()
//	acc, _ := stm.Commit(ctx, rt, stm.NewTVar[int64](100))
//
//	withdraw := stm.Bind(acc.Get(), func(balance int64) stm.Txn[stm.Unit] {
//		return stm.Then(stm.Check(balance >= 30), acc.Set(balance-30))
//	})
//	_, err := stm.Commit(ctx, rt, withdraw)
//
// A Txn is an inert value. Building one has no effect; the same value may be
// committed many times and from many goroutines. Commit interprets the program
// against a private log without taking any lock, then validates the versions
// it observed and publishes its writes while holding the locks of the touched
// TVars, acquired in TVar creation order. If another transaction committed a
// conflicting write in the meantime, the program is silently interpreted again
// from the start.
//
// Retry (and Check with a false condition) abandons the current attempt and
// parks the caller until another transaction writes one of the TVars the
// attempt read. OrElse composes two programs so that the second one runs
// when the first retries. Abort raises an application error that leaves every
// TVar untouched and is returned from Commit without being retried;
// HandleError can recover from it inside the program.
//
// Functions passed to Bind, Map, Modify and friends may run more than once per
// Commit and may observe values that are later discarded by validation. They
// must be free of side effects outside the program.
package stm
