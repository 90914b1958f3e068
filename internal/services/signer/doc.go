// Package signer is the capability surface the rest of an application uses
// to sign and encrypt through a paired remote signer.
//
// An Adapter looks like a local signer: GetIdentity, Sign, EncryptFor and
// DecryptFrom block until the remote signer answers. Every call fails with
// domain.ErrNotPaired, without touching the network, unless the session is
// ready.
//
// A Slot holds whichever signer the host currently dispatches to. Installing
// an Adapter remembers the signer it replaced so Restore can put it back.
package signer
