// Package algoselect picks the negotiated SSH algorithms from the two
// KEXINIT algorithm-preference lists, matching RFC 4253 section 7.1's
// first-client-match rule with capability constraints on key exchange and
// server host key.
package algoselect

import (
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/pasta-project/pasta-go/convo"
)

// capability is the (needs/provides encryption, needs/provides signature)
// pair looked up from the known-algorithm tables.
type capability struct {
	encryption bool
	signature  bool
}

// kexAlgorithms lists required capabilities per RFC 4253 / IANA
// ssh-parameters; wildcard entries (trailing "*") match by prefix and
// exclude names containing "@" (vendor/local extensions).
var kexAlgorithms = map[string]capability{
	"diffie-hellman-group-exchange-sha1":   {false, false},
	"diffie-hellman-group-exchange-sha256": {false, false},
	"diffie-hellman-group1-sha1":           {false, false},
	"diffie-hellman-group14-sha1":          {false, false},
	"ecdh-sha2-*":                          {false, false},
	"ecmqv-sha2":                           {false, false},
	"gss-group1-sha1-*":                    {false, false},
	"gss-group14-sha1-*":                   {false, false},
	"gss-gex-sha1-*":                       {false, false},
	"gss-*":                                {false, false},
	"rsa1024-sha1":                         {false, true},
	"rsa2048-sha256":                       {false, true},
}

// serverHostKeyAlgorithms lists what each host-key algorithm provides.
var serverHostKeyAlgorithms = map[string]capability{
	"ssh-dss":               {false, true},
	"ssh-rsa":               {false, true},
	"spki-sign-rsa":         {false, true},
	"spki-sign-dss":         {false, true},
	"pgp-sign-rsa":          {false, true},
	"pgp-sign-dss":          {false, true},
	"null":                  {false, false},
	"ecdsa-sha2-*":          {false, true},
	"x509v3-ssh-dss":        {false, true},
	"x509v3-ssh-rsa":        {false, true},
	"x509v3-rsa2048-sha256": {false, true},
	"x509v3-ecdsa-sha2-*":   {false, true},
}

// capabilityCache memoizes table lookups across the many KEXINITs of a
// capture, most of which repeat the same handful of algorithm names.
var capabilityCache = cache.New(5*time.Minute, 10*time.Minute)

func lookupCapability(table map[string]capability, algo string) capability {
	ck := cacheKey(table, algo)
	if v, ok := capabilityCache.Get(ck); ok {
		return v.(capability)
	}
	cap := matchCapability(table, algo)
	capabilityCache.Set(ck, cap, cache.DefaultExpiration)
	return cap
}

// cacheKey distinguishes the kex and host-key tables without needing the
// map value itself to be comparable/hashable.
func cacheKey(table map[string]capability, algo string) string {
	if _, ok := table["ssh-dss"]; ok {
		return "hostkey:" + algo
	}
	return "kex:" + algo
}

func matchCapability(table map[string]capability, algo string) capability {
	if strings.Contains(algo, "@") {
		return capability{}
	}
	for pattern, cap := range table {
		if strings.HasSuffix(pattern, "*") {
			prefix := strings.TrimSuffix(pattern, "*")
			if strings.HasPrefix(algo, prefix) {
				return cap
			}
			continue
		}
		if algo == pattern {
			return cap
		}
	}
	return capability{}
}

// Select computes the negotiated eight-tuple for c, given both sides'
// KEXINIT algorithm lists are present.
func Select(c *convo.Conversation) convo.SelectedAlgorithms {
	kex, hostKey := selectKexAndHostKey(c.ClientAlgos.KexAlgorithms, c.ServerAlgos.KexAlgorithms,
		c.ClientAlgos.ServerHostKeyAlgorithms, c.ServerAlgos.ServerHostKeyAlgorithms)

	return convo.SelectedAlgorithms{
		Kex:                       kex,
		ServerHostKey:             hostKey,
		EncryptionClientToServer:  firstMatch(c.ClientAlgos.EncryptionAlgorithmsClientToServer, c.ServerAlgos.EncryptionAlgorithmsClientToServer),
		EncryptionServerToClient:  firstMatch(c.ClientAlgos.EncryptionAlgorithmsServerToClient, c.ServerAlgos.EncryptionAlgorithmsServerToClient),
		MacClientToServer:         firstMatch(c.ClientAlgos.MacAlgorithmsClientToServer, c.ServerAlgos.MacAlgorithmsClientToServer),
		MacServerToClient:         firstMatch(c.ClientAlgos.MacAlgorithmsServerToClient, c.ServerAlgos.MacAlgorithmsServerToClient),
		CompressionClientToServer: firstMatch(c.ClientAlgos.CompressionAlgorithmsClientToServer, c.ServerAlgos.CompressionAlgorithmsClientToServer),
		CompressionServerToClient: firstMatch(c.ClientAlgos.CompressionAlgorithmsServerToClient, c.ServerAlgos.CompressionAlgorithmsServerToClient),
	}
}

const unknown = "unknown"

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// firstMatch picks the first entry in the client's list that also appears
// in the server's list.
func firstMatch(clientList, serverList string) string {
	server := splitList(serverList)
	for _, algo := range splitList(clientList) {
		if contains(server, algo) {
			return algo
		}
	}
	return unknown
}

// selectKexAndHostKey iterates the client's kex list; for each candidate
// present on the server's list, it looks up required capabilities and
// attempts to pick a compatible, mutually-supported host-key algorithm.
// The first kex for which such a host-key exists is selected together
// with that host-key; if the search is exhausted, both are "unknown".
func selectKexAndHostKey(clientKex, serverKex, clientHostKey, serverHostKey string) (string, string) {
	serverKexList := splitList(serverKex)
	for _, algo := range splitList(clientKex) {
		if !contains(serverKexList, algo) {
			continue
		}
		needed := lookupCapability(kexAlgorithms, algo)
		if hk, ok := pickHostKey(clientHostKey, serverHostKey, needed); ok {
			return algo, hk
		}
	}
	return unknown, unknown
}

func pickHostKey(clientList, serverList string, needed capability) (string, bool) {
	server := splitList(serverList)
	for _, algo := range splitList(clientList) {
		if !contains(server, algo) {
			continue
		}
		cap := lookupCapability(serverHostKeyAlgorithms, algo)
		if needed.encryption && !cap.encryption {
			continue
		}
		if needed.signature && !cap.signature {
			continue
		}
		return algo, true
	}
	return "", false
}
