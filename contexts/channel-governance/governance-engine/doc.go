// Package governanceengine implements channel-scoped governance inside the
// channel-governance context.
//
// Each chat channel gets its own privilege store, poll store and vote
// ledger, kept in a separate storage namespace. Members with stored
// privileges call polls, vote on them and change their votes after an
// explicit confirmation; admins veto polls and creators cancel them. Chat
// transports feed command lines into the channel registry and receive
// notices and broadcasts back through ports.
package governanceengine
