package textcheck_test

import (
	"fmt"

	"github.com/jonwraymond/exercisegrade/textcheck"
)

func ExampleValidateOutput() {
	fmt.Println(textcheck.ValidateOutput("Hello,   world!\r\n", "Hello, world!", false))
	fmt.Println(textcheck.ValidateOutput("Hello,   world!", "Hello, world!", true))
	// Output:
	// true
	// false
}
