// genkey prints a fresh random hex key. The same key format serves both
// ends of the stack: the backend signs access tokens with it and
// sessionctl derives the sealing key for its session file from it
// (SESSIONCTL_KEY).
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
)

// 32 bytes covers both uses: HMAC-SHA256 signing and HKDF input
const keyLen = 32

func main() {
	key := make([]byte, keyLen)
	if _, err := rand.Read(key); err != nil {
		fmt.Fprintf(os.Stderr, "error while generating key: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(hex.EncodeToString(key))
}
