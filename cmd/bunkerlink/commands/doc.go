// Package commands defines the bunkerlink CLI and wires dependencies for
// subcommands.
//
// Commands
//
//   - connect <uri>          Pair with a remote signer from a bunker:// or nostrconnect:// URI
//   - status                 Show the session state, relays and user key
//   - whoami                 Print the user's public key
//   - sign [content]         Ask the remote signer to sign an event
//   - encrypt <peer> <text>  NIP-44 encrypt text for peer as the user
//   - decrypt <peer> <text>  NIP-44 decrypt text from peer as the user
//   - ping                   Check that the remote signer answers
//   - relays                 List the session's relays
//   - disconnect             Forget the session
//
// # Implementation
//
// The root command loads <home>/config.toml, applies flag overrides, builds
// the logger and the app (store, relay pool, session controller) and restores
// any stored session before a subcommand runs. Each invocation is its own
// process, so a session established by connect is picked up from the store by
// later commands without repeating the handshake.
package commands
