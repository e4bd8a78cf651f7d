package main

import (
	"log"

	"github.com/takeaway1/wxchat/cmd/wxchat"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	wxchat.Execute()
}
