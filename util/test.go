package util

import (
	"fmt"
	"github.com/hauke96/sigolo/v2"
	"github.com/pkg/errors"
	"math"
	"reflect"
	"regexp"
	"strings"
	"testing"
)

func AssertEqual(t *testing.T, expected any, actual any) {
	t.Helper()

	if reflect.DeepEqual(expected, actual) {
		return
	}

	expectedString, expectedIsString := expected.(string)
	actualString, actualIsString := actual.(string)
	if expectedIsString && actualIsString {
		assertEqualStrings(t, expectedString, actualString)
		return
	}

	sigolo.Errorb(1, "Expect to be equal.\nExpected: %+v\n----------\nActual  : %+v\n", expected, actual)
	t.Fail()
}

func AssertApprox[T float32 | float64](t *testing.T, expected T, actual T, accuracy T) {
	t.Helper()
	if math.Abs(float64(expected-actual)) > float64(accuracy) {
		sigolo.Errorb(1, "Expect %v to be within %v of %v", actual, accuracy, expected)
		t.Fail()
	}
}

// assertEqualStrings prints both strings line by line next to each other and marks the differing lines.
func assertEqualStrings(t *testing.T, expected string, actual string) {
	expectedLines := strings.Split(expected, "\n")
	actualLines := strings.Split(actual, "\n")

	sigolo.Errorb(2, "Expect to be equal.\n|   | %-50s | %-50s |", "Expected", "Actual")
	fmt.Printf("|%s|\n", strings.Repeat("-", 109))

	lineCount := max(len(expectedLines), len(actualLines))
	for i := 0; i < lineCount; i++ {
		expectedLine := ""
		if i < len(expectedLines) {
			expectedLine = expectedLines[i]
		}
		actualLine := ""
		if i < len(actualLines) {
			actualLine = actualLines[i]
		}

		changeMark := " "
		if actualLine != expectedLine {
			changeMark = "*"
		}

		fmt.Printf("| %s | %-50s | %-50s |\n", changeMark, "\""+expectedLine+"\"", "\""+actualLine+"\"")
	}

	t.Fail()
}

func isNil(value any) bool {
	if value == nil {
		return true
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return v.IsNil()
	}
	return false
}

func AssertNil(t *testing.T, value any) {
	t.Helper()
	if !isNil(value) {
		sigolo.Errorb(1, "Expect to be 'nil' but was: %#v", value)
		t.Fail()
	}
}

func AssertNotNil(t *testing.T, value any) {
	t.Helper()
	if isNil(value) {
		sigolo.Errorb(1, "Expect NOT to be 'nil' but was: %#v", value)
		t.FailNow()
	}
}

func AssertError(t *testing.T, expectedMessage string, err error) {
	t.Helper()
	if err == nil {
		sigolo.Errorb(1, "Expected error with message: %s\nActual error: nil", expectedMessage)
		t.FailNow()
	}
	if expectedMessage != err.Error() {
		sigolo.Errorb(1, "Expected message: %s\nActual error message: %s", expectedMessage, err.Error())
		t.Fail()
	}
}

// AssertErrorAs checks that the error chain of err contains an error of type T and returns it.
func AssertErrorAs[T error](t *testing.T, err error) T {
	t.Helper()
	var target T
	if !errors.As(err, &target) {
		sigolo.Errorb(1, "Expected error of type %T in chain but got: %+v", target, err)
		t.FailNow()
	}
	return target
}

func AssertErrorIs(t *testing.T, expected error, err error) {
	t.Helper()
	if !errors.Is(err, expected) {
		sigolo.Errorb(1, "Expected error '%v' in chain but got: %+v", expected, err)
		t.Fail()
	}
}

func AssertTrue(t *testing.T, b bool) {
	t.Helper()
	if !b {
		sigolo.Errorb(1, "Expected true but got false")
		t.Fail()
	}
}

func AssertFalse(t *testing.T, b bool) {
	t.Helper()
	if b {
		sigolo.Errorb(1, "Expected false but got true")
		t.Fail()
	}
}

func AssertMatch(t *testing.T, regexString string, content string) {
	t.Helper()
	regex := regexp.MustCompile(regexString)
	if !regex.MatchString(content) {
		sigolo.Errorb(1, "Expected to match\nRegex: %s\nContent: %s", regexString, content)
		t.Fail()
	}
}

func AssertNoMatch(t *testing.T, regexString string, content string) {
	t.Helper()
	regex := regexp.MustCompile(regexString)
	if regex.MatchString(content) {
		sigolo.Errorb(1, "Expected NOT to match\nRegex: %s\nContent: %s", regexString, content)
		t.Fail()
	}
}
