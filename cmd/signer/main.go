// Package main provides a CLI tool for preparing signed report packages
// against a local verifier. Identities it generates are for dev/test use and
// carry no vLEI credential on their own.
package main

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"verigate/internal/keri"
)

type identityOutput struct {
	AID  string `json:"aid"`
	Seed string `json:"seed"`
}

type signOutput struct {
	File string   `json:"file"`
	AID  string   `json:"aid"`
	Sigs []string `json:"sigs"`
}

func main() {
	identityCmd := flag.NewFlagSet("identity", flag.ExitOnError)
	identityJSON := identityCmd.Bool("json", false, "Output as JSON")

	digestCmd := flag.NewFlagSet("digest", flag.ExitOnError)
	digestFile := digestCmd.String("file", "", "File to digest")

	signCmd := flag.NewFlagSet("sign", flag.ExitOnError)
	signSeed := signCmd.String("seed", "", "base64url ed25519 seed from 'identity'")
	signFile := signCmd.String("file", "", "File to sign")
	signIndex := signCmd.Int("index", 0, "Key index in the signer's key state")
	signJSON := signCmd.Bool("json", false, "Output a manifest signature entry as JSON")

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "identity":
		_ = identityCmd.Parse(os.Args[2:])
		runIdentity(*identityJSON)
	case "digest":
		_ = digestCmd.Parse(os.Args[2:])
		runDigest(*digestFile)
	case "sign":
		_ = signCmd.Parse(os.Args[2:])
		runSign(*signSeed, *signFile, *signIndex, *signJSON)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: signer <command> [flags]

commands:
  identity   generate a dev ed25519 identity (AID + seed)
  digest     print the SAID digest of a file, for the upload path
  sign       sign a file and print the indexed qb64 signature`)
}

func runIdentity(asJSON bool) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		fatal("generating key", err)
	}
	aid := keri.KeyAID(pub)
	seed := base64.RawURLEncoding.EncodeToString(priv.Seed())

	if asJSON {
		printJSON(identityOutput{AID: aid.String(), Seed: seed})
		return
	}
	fmt.Printf("aid:  %s\nseed: %s\n", aid, seed)
}

func runDigest(file string) {
	if file == "" {
		fatal("reading file", fmt.Errorf("-file is required"))
	}
	data, err := os.ReadFile(file)
	if err != nil {
		fatal("reading file", err)
	}
	fmt.Println(keri.DigestSAID(data))
}

func runSign(seed, file string, index int, asJSON bool) {
	if seed == "" || file == "" {
		fatal("signing", fmt.Errorf("-seed and -file are required"))
	}
	raw, err := base64.RawURLEncoding.DecodeString(seed)
	if err != nil || len(raw) != ed25519.SeedSize {
		fatal("signing", fmt.Errorf("seed must be a base64url %d-byte ed25519 seed", ed25519.SeedSize))
	}
	data, err := os.ReadFile(file)
	if err != nil {
		fatal("reading file", err)
	}

	priv := ed25519.NewKeyFromSeed(raw)
	qb64 := keri.EncodeIndexedSig(index, ed25519.Sign(priv, data))

	if asJSON {
		printJSON(signOutput{
			File: "../reports/" + filepath.Base(file),
			AID:  keri.KeyAID(priv.Public().(ed25519.PublicKey)).String(),
			Sigs: []string{qb64},
		})
		return
	}
	fmt.Println(qb64)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func fatal(action string, err error) {
	fmt.Fprintf(os.Stderr, "signer: %s: %v\n", action, err)
	os.Exit(1)
}
