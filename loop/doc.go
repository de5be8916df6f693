/*
Package loop provides the single logical event loop the cellular manager runs
on. RPC completions, bus signals, process exits and timers are all posted to a
Dispatcher and executed one at a time, so state owned by a device, capability
or watcher is only ever touched from the loop goroutine.

Scope lets an owner detach callbacks it handed out: once a Scope is closed,
callbacks wrapped by it turn into no-ops instead of reaching a torn down
object.
*/
package loop
