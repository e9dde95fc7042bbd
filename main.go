package main

import "context"

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		exitOnError(err)
	}
}
