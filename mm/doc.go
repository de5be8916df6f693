/*
Package mm defines the proxy set used to talk to ModemManager and a godbus
implementation of it.

Two protocol generations are supported: the classic
org.freedesktop.ModemManager interface (device list, Modem.Gsm.*,
Modem.Cdma) and ModemManager1 (ObjectManager with Modem, Modem3gpp,
Simple and Location interfaces).

Every method is asynchronous. It takes a timeout and a completion and
returns immediately; completions and signal callbacks always run on the
loop.Dispatcher the proxies were created with. A completion fires exactly
once, either with the reply or with an OperationTimeout result when the
timeout expires first. A reply arriving after the timeout is dropped.
*/
package mm
