// Package redisstream carries an XML byte stream over Redis Streams
// (Strategy + Adapter patterns): outbound chunks are XADDed to one stream
// key, inbound chunks are blocking-XREAD from another and pumped into the
// receiver. Two endpoints form a logical connection by using mirrored
// in/out keys.
//
// This suits brokered deployments where the two ends of a protocol
// session never hold a direct socket to each other.
package redisstream
