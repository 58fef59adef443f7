// Command auditctl checks audit exports and policy files offline.
package main

func main() {
	Execute()
}
