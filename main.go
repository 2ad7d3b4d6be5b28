package main

import "xcross/internal/xcross"

func main() {
	xcross.Main()
}
