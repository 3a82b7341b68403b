// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package main provides the xception CLI.
//
// Usage:
//
//	xception version
//	xception summary -variant xception_65
//	xception infer -variant xception_41 -size 224 -topk 5
//	xception export -variant xception_71 -out xception_71.safetensors
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
)

const version = "v0.1.0"

func main() {
	log.SetFlags(0)
	log.SetPrefix("xception: ")

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "version":
		fmt.Printf("Xception-DeepLab %s\n", version)
	case "summary":
		err = summaryCmd(args)
	case "infer":
		err = inferCmd(ctx, args)
	case "export":
		err = exportCmd(ctx, args)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func usage() {
	fmt.Println("Xception-DeepLab backbones on Born")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Commands:")
	fmt.Println("  version    Show version")
	fmt.Println("  summary    Print the block layout, stride trace and weight statistics")
	fmt.Println("  infer      Run a forward pass on synthetic input")
	fmt.Println("  export     Write model weights to a .safetensors file")
	fmt.Println("")
	fmt.Println("Run 'xception <command> -h' for command flags.")
}
