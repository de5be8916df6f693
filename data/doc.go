/*
Package data contains common data structures that are used throughout the project.

[Error] is the result type every asynchronous operation delivers to its
completion callback. The state enums ([DeviceState], [ModemState],
[ServiceState]) and [Failure] reasons are shared by the capability, the
cellular device and the presentation layers. [DeviceSnapshot] is the read-only
projection of a device that is published over NATS.
*/
package data
