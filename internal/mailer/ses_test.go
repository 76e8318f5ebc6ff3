package mailer

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
)

type fakeSES struct {
	in  *sesv2.SendEmailInput
	err error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
}

func validEmail() Email {
	return Email{
		From:    "noreply@example.com",
		To:      "a@x.com",
		Subject: "Welcome",
		HTML:    "<p>hi</p>",
		Text:    "hi",
	}
}

func TestSESSender_Send(t *testing.T) {
	fake := &fakeSES{}
	sender := NewSESSender(fake, nil)

	id, err := sender.Send(context.Background(), validEmail())
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if id != "ses-1" {
		t.Errorf("Send() id = %v, want ses-1", id)
	}

	in := fake.in
	if aws.ToString(in.FromEmailAddress) != "noreply@example.com" {
		t.Errorf("FromEmailAddress = %v", aws.ToString(in.FromEmailAddress))
	}
	if len(in.Destination.ToAddresses) != 1 || in.Destination.ToAddresses[0] != "a@x.com" {
		t.Errorf("ToAddresses = %v", in.Destination.ToAddresses)
	}
	msg := in.Content.Simple
	if aws.ToString(msg.Subject.Data) != "Welcome" {
		t.Errorf("Subject = %v", aws.ToString(msg.Subject.Data))
	}
	if aws.ToString(msg.Body.Html.Data) != "<p>hi</p>" || aws.ToString(msg.Body.Text.Data) != "hi" {
		t.Errorf("Body = %+v", msg.Body)
	}
}

func TestSESSender_Send_Errors(t *testing.T) {
	t.Run("invalid email is not sent", func(t *testing.T) {
		fake := &fakeSES{}
		email := validEmail()
		email.From = ""
		if _, err := NewSESSender(fake, nil).Send(context.Background(), email); err == nil {
			t.Error("Send() error = nil, want validation error")
		}
		if fake.in != nil {
			t.Error("SendEmail called for invalid email")
		}
	})

	t.Run("SES failure is returned", func(t *testing.T) {
		fake := &fakeSES{err: errors.New("MessageRejected")}
		if _, err := NewSESSender(fake, nil).Send(context.Background(), validEmail()); err == nil {
			t.Error("Send() error = nil, want SES error")
		}
	})
}

func TestEmail_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Email)
		wantErr bool
	}{
		{"valid", func(*Email) {}, false},
		{"missing recipient", func(e *Email) { e.To = " " }, true},
		{"missing subject", func(e *Email) { e.Subject = "" }, true},
		{"missing body", func(e *Email) { e.HTML, e.Text = "", "" }, true},
		{"text only", func(e *Email) { e.HTML = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := validEmail()
			tt.mutate(&e)
			if err := e.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
